// Package config loads the agent's runtime configuration from the
// environment, which is how the switch's dialplan passes settings down.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration.
type Config struct {
	// WorkerURL is the local model worker serving transcription and
	// synthesis.
	WorkerURL string

	// OllamaURL and OllamaModel select the reply backend.
	OllamaURL   string
	OllamaModel string

	// SystemPrompt sets the agent's persona.
	SystemPrompt string

	// TTSProvider picks the synthesis backend: "kokoro" or "polly".
	TTSProvider string

	// Voice is the synthesis style passed to the provider.
	Voice string

	// Polly settings, used only when TTSProvider is "polly".
	PollyRegion string
	PollyVoice  string
	PollyEngine string

	// RecordingDir is where the switch writes recording streams.
	RecordingDir string

	// CalibrationPath points at an optional threshold-override file.
	CalibrationPath string

	// CommandTimeout bounds one control-channel command.
	CommandTimeout time.Duration

	// StreamingASR enables live transcription sessions when the worker
	// supports them.
	StreamingASR bool

	// Greeting and Goodbye frame the conversation.
	Greeting string
	Goodbye  string

	// MaxCallDuration caps the whole call.
	MaxCallDuration time.Duration

	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// LoadFromEnv builds the configuration from RINGLINE_* environment
// variables, with defaults suited to a single-host deployment.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		WorkerURL:       envStr("RINGLINE_WORKER_URL", "http://127.0.0.1:8777"),
		OllamaURL:       envStr("RINGLINE_OLLAMA_URL", "http://127.0.0.1:11434"),
		OllamaModel:     envStr("RINGLINE_OLLAMA_MODEL", "llama3.1"),
		SystemPrompt:    envStr("RINGLINE_SYSTEM_PROMPT", ""),
		TTSProvider:     strings.ToLower(envStr("RINGLINE_TTS_PROVIDER", "kokoro")),
		Voice:           envStr("RINGLINE_VOICE", ""),
		PollyRegion:     envStr("RINGLINE_POLLY_REGION", ""),
		PollyVoice:      envStr("RINGLINE_POLLY_VOICE", "Joanna"),
		PollyEngine:     envStr("RINGLINE_POLLY_ENGINE", "neural"),
		RecordingDir:    envStr("RINGLINE_RECORDING_DIR", "/var/spool/asterisk/monitor"),
		CalibrationPath: envStr("RINGLINE_CALIBRATION", ""),
		Greeting:        envStr("RINGLINE_GREETING", ""),
		Goodbye:         envStr("RINGLINE_GOODBYE", ""),
		LogLevel:        strings.ToLower(envStr("RINGLINE_LOG_LEVEL", "info")),
	}

	var err error
	if cfg.CommandTimeout, err = envDuration("RINGLINE_COMMAND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxCallDuration, err = envDuration("RINGLINE_MAX_CALL_DURATION", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StreamingASR, err = envBool("RINGLINE_STREAMING_ASR", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TTSProvider {
	case "kokoro", "polly":
	default:
		return fmt.Errorf("RINGLINE_TTS_PROVIDER must be kokoro or polly, got %q", c.TTSProvider)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("RINGLINE_LOG_LEVEL must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("RINGLINE_COMMAND_TIMEOUT must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog's levels.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
