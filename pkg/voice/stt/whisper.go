package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// WhisperWorker talks to the local model worker's transcription endpoints.
// The worker holds the models in memory across calls; this client sends file
// paths, not audio, since worker and agent share a filesystem.
type WhisperWorker struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WhisperOption configures a WhisperWorker.
type WhisperOption func(*WhisperWorker)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) WhisperOption {
	return func(w *WhisperWorker) {
		if c != nil {
			w.httpClient = c
		}
	}
}

// WithWhisperLogger sets the worker client's logger.
func WithWhisperLogger(logger *slog.Logger) WhisperOption {
	return func(w *WhisperWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWhisperWorker creates a client for the model worker at baseURL.
func NewWhisperWorker(baseURL string, opts ...WhisperOption) *WhisperWorker {
	w := &WhisperWorker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WhisperWorker) Name() string {
	return "whisper-worker"
}

type transcribeRequest struct {
	Path string `json:"path"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	DurationMs int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Transcribe sends a recording path to the worker and returns its transcript.
// An empty transcript is a valid result, not an error.
func (w *WhisperWorker) Transcribe(ctx context.Context, path string) (*Transcript, error) {
	body, err := json.Marshal(transcribeRequest{Path: path})
	if err != nil {
		return nil, fmt.Errorf("encoding transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("transcription worker busy")
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcription worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding transcribe response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("transcription failed: %s", tr.Error)
	}

	w.logger.Debug("transcription complete",
		"path", path,
		"chars", len(tr.Text),
		"confidence", tr.Confidence,
		"took", time.Since(start))
	return &Transcript{
		Text:       strings.TrimSpace(tr.Text),
		Confidence: tr.Confidence,
		Duration:   time.Duration(tr.DurationMs) * time.Millisecond,
	}, nil
}

// TranscribeFile is the narrow form used by capture and barge-in, which only
// care about the words.
func (w *WhisperWorker) TranscribeFile(ctx context.Context, path string) (string, error) {
	tr, err := w.Transcribe(ctx, path)
	if err != nil {
		return "", err
	}
	return tr.Text, nil
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// Health checks the worker is up with models in memory.
func (w *WhisperWorker) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker health returned %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if !h.ModelsLoaded {
		return fmt.Errorf("worker up but models not loaded")
	}
	return nil
}
