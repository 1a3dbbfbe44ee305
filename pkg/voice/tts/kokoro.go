package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// KokoroWorker synthesizes speech through the local model worker, which
// writes the rendered audio to disk and returns its path.
type KokoroWorker struct {
	baseURL      string
	httpClient   *http.Client
	defaultVoice string
	voices       map[string]string
	replacements map[string]string
	logger       *slog.Logger
}

// KokoroOption configures a KokoroWorker.
type KokoroOption func(*KokoroWorker)

// WithKokoroHTTPClient overrides the HTTP client, mainly for tests.
func WithKokoroHTTPClient(c *http.Client) KokoroOption {
	return func(k *KokoroWorker) {
		if c != nil {
			k.httpClient = c
		}
	}
}

// WithVoices maps style names to worker voice identifiers.
func WithVoices(defaultVoice string, voices map[string]string) KokoroOption {
	return func(k *KokoroWorker) {
		if defaultVoice != "" {
			k.defaultVoice = defaultVoice
		}
		if voices != nil {
			k.voices = voices
		}
	}
}

// WithReplacements sets pronunciation fixups applied before synthesis.
func WithReplacements(r map[string]string) KokoroOption {
	return func(k *KokoroWorker) {
		k.replacements = r
	}
}

// WithKokoroLogger sets the worker client's logger.
func WithKokoroLogger(logger *slog.Logger) KokoroOption {
	return func(k *KokoroWorker) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKokoroWorker creates a client for the model worker at baseURL.
func NewKokoroWorker(baseURL string, opts ...KokoroOption) *KokoroWorker {
	k := &KokoroWorker{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		defaultVoice: "af_heart",
		voices:       map[string]string{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KokoroWorker) Name() string {
	return "kokoro-worker"
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthesizeResponse struct {
	Path       string `json:"path"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Synthesize renders text and returns the worker-written audio file path.
func (k *KokoroWorker) Synthesize(ctx context.Context, text, style string) (string, error) {
	text = PrepareText(text, k.replacements)
	if text == "" {
		return "", fmt.Errorf("nothing to synthesize")
	}

	voice := k.defaultVoice
	if v, ok := k.voices[style]; ok {
		voice = v
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return "", fmt.Errorf("encoding synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("synthesis worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding synthesize response: %w", err)
	}
	if sr.Error != "" {
		return "", fmt.Errorf("synthesis failed: %s", sr.Error)
	}
	if sr.Path == "" {
		return "", fmt.Errorf("synthesis returned no file")
	}
	if _, err := os.Stat(sr.Path); err != nil {
		return "", fmt.Errorf("synthesized file missing: %w", err)
	}

	k.logger.Debug("synthesis complete",
		"voice", voice,
		"chars", len(text),
		"path", sr.Path,
		"took", time.Since(start))
	return sr.Path, nil
}
