package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxHistoryTurns bounds the rolling conversation window sent to the model.
const maxHistoryTurns = 10

// Ollama answers with a locally served language model, keeping a rolling
// per-call conversation history so the model sees recent context.
type Ollama struct {
	baseURL      string
	model        string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
	logger       *slog.Logger

	mu      sync.Mutex
	history []chatMessage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// OllamaOption configures an Ollama responder.
type OllamaOption func(*Ollama)

// WithSystemPrompt sets the persona and instructions prepended to every
// conversation.
func WithSystemPrompt(prompt string) OllamaOption {
	return func(o *Ollama) { o.systemPrompt = prompt }
}

// WithTemperature sets sampling temperature.
func WithTemperature(t float64) OllamaOption {
	return func(o *Ollama) { o.temperature = t }
}

// WithOllamaHTTPClient overrides the HTTP client, mainly for tests.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithOllamaLogger sets the responder's logger.
func WithOllamaLogger(logger *slog.Logger) OllamaOption {
	return func(o *Ollama) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOllama creates a responder against the model server at baseURL.
func NewOllama(baseURL, model string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reply sends the utterance with the rolling history and records both sides
// of the exchange. A failed call records nothing, so a retry sees the same
// history.
func (o *Ollama) Reply(ctx context.Context, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", fmt.Errorf("empty utterance")
	}

	messages := o.buildMessages(utterance)
	body, err := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: o.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if cr.Error != "" {
		return "", fmt.Errorf("model error: %s", cr.Error)
	}

	reply := strings.TrimSpace(cr.Message.Content)
	if reply == "" {
		return "", fmt.Errorf("model returned empty reply")
	}

	o.remember(utterance, reply)
	o.logger.Debug("model replied",
		"model", o.model,
		"chars", len(reply),
		"took", time.Since(start))
	return reply, nil
}

// Reset clears the conversation, called between calls when a responder
// instance is reused.
func (o *Ollama) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

func (o *Ollama) buildMessages(utterance string) []chatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := make([]chatMessage, 0, len(o.history)+2)
	if o.systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: o.systemPrompt})
	}
	msgs = append(msgs, o.history...)
	return append(msgs, chatMessage{Role: "user", Content: utterance})
}

func (o *Ollama) remember(utterance, reply string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = append(o.history,
		chatMessage{Role: "user", Content: utterance},
		chatMessage{Role: "assistant", Content: reply})
	if len(o.history) > maxHistoryTurns*2 {
		o.history = o.history[len(o.history)-maxHistoryTurns*2:]
	}
}
