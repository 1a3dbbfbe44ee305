// Package stt defines the speech-to-text provider surface and the local
// model-worker implementation the voice agent talks to.
package stt

import (
	"context"
	"time"
)

// Transcript is one transcription result.
type Transcript struct {
	Text       string
	Confidence float64
	Duration   time.Duration
}

// Provider is a speech-to-text backend.
type Provider interface {
	// Name identifies the provider for logging.
	Name() string

	// Transcribe converts a recording on disk to text.
	Transcribe(ctx context.Context, path string) (*Transcript, error)

	// Health verifies the backend is reachable and has its models loaded.
	Health(ctx context.Context) error
}

// Delta is one incremental result from a streaming transcription session.
type Delta struct {
	Text  string
	Final bool
}
