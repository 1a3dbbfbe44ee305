// Package turn sequences one conversational exchange: speak the agent's
// line with barge-in armed, then capture and transcribe the caller's answer.
// It is the only component that issues call-control commands during a turn,
// which is what keeps the single-outstanding-command rule intact.
package turn

import (
	"time"

	"github.com/ringline-go/ringline/pkg/bargein"
	"github.com/ringline-go/ringline/pkg/vad"
)

// Config tunes a turn.
type Config struct {
	// Voice is the synthesis style passed to the speech provider.
	Voice string

	// ChunkPlayback splits the agent's line into sentences played one file
	// at a time, so an interruption cuts playback at the next sentence
	// boundary instead of waiting out the whole prompt.
	ChunkPlayback bool

	// Capture tunes the main utterance capture.
	Capture vad.Config

	// Grace tunes the short second listen offered after a caller finishes,
	// catching a trailing thought. Enabled by GraceEnabled.
	Grace        vad.Config
	GraceEnabled bool

	// Monitor tunes barge-in detection during playback.
	Monitor bargein.Config

	// MonitorJoinTimeout bounds how long playback waits for an interruption
	// transcript after cutting the prompt short.
	MonitorJoinTimeout time.Duration

	// StreamingASR feeds captured audio to a live transcription session
	// while the caller is still talking, when the provider supports it. The
	// one-shot path remains the fallback.
	StreamingASR bool

	// FallbackUtterance is spoken when the reply backend fails.
	FallbackUtterance string
}

// DefaultConfig returns turn settings for telephony conversation.
func DefaultConfig() Config {
	return Config{
		ChunkPlayback:      true,
		Capture:            vad.DefaultConfig(),
		Grace:              vad.GraceConfig(),
		GraceEnabled:       true,
		Monitor:            bargein.DefaultConfig(),
		MonitorJoinTimeout: 6 * time.Second,
		FallbackUtterance:  "I'm sorry, I'm having a little trouble right now. Could you say that again?",
	}
}
