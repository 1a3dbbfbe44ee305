// Package tts defines the text-to-speech provider surface and its two
// implementations: the local model worker and Amazon Polly.
package tts

import (
	"context"
	"html"
	"strings"
)

// Provider is a text-to-speech backend. Synthesize returns the path of a
// playable audio file on local disk; the caller owns its removal.
type Provider interface {
	// Name identifies the provider for logging.
	Name() string

	// Synthesize renders text to speech. style selects a named voice
	// variant ("" for the provider default).
	Synthesize(ctx context.Context, text, style string) (string, error)
}

// PrepareText normalizes text before synthesis: HTML entities produced by
// upstream language models are unescaped and configured pronunciation
// replacements applied. Replacement matching is literal and case-sensitive.
func PrepareText(text string, replacements map[string]string) string {
	text = html.UnescapeString(text)
	for from, to := range replacements {
		text = strings.ReplaceAll(text, from, to)
	}
	return strings.TrimSpace(text)
}
