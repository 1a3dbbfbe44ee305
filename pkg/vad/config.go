// Package vad decides when a caller has started and finished speaking by
// watching a recording file grow. No signal processing is involved: the
// switch writes audio to disk at a steady rate while the caller speaks, so
// byte growth per poll is the voice activity signal.
package vad

import "time"

// Config tunes the capture state machine. All thresholds are in bytes of
// 8 kHz mono 16-bit recording, i.e. 16000 bytes per second of audio.
type Config struct {
	// PollInterval is the spacing between size probes and the unit of the
	// state machine's logical clock.
	PollInterval time.Duration

	// MinSpeechBytes is the total size that must accumulate before speech is
	// considered to have started. Filters out line noise and header bytes.
	MinSpeechBytes int64

	// GrowthPerTick is the minimum growth per poll that still counts as
	// active speech. Below it, the poll is a silence tick.
	GrowthPerTick int64

	// SilenceTicks is how many consecutive silence ticks end the utterance.
	SilenceTicks int

	// GuardWindow suppresses silence counting for this long after speech
	// start, so a breath pause right after the first word cannot end the
	// utterance prematurely.
	GuardWindow time.Duration

	// SpeechStartTimeout gives up if speech never starts within this window.
	SpeechStartTimeout time.Duration

	// MaxDuration is the hard bound on a single capture.
	MaxDuration time.Duration

	// MaxBytes is the hard bound on recording size, a safety stop against a
	// stuck line recording forever.
	MaxBytes int64

	// MinViableBytes is the smallest final recording worth transcribing.
	MinViableBytes int64

	// SettleDelay is how long to wait after stopping the recording stream
	// before reading the file, letting the switch flush its final buffers.
	SettleDelay time.Duration
}

// DefaultConfig returns capture thresholds tuned for 8 kHz telephony audio:
// speech must accumulate 100 ms of audio to start, and 500 ms of no growth
// ends it.
func DefaultConfig() Config {
	return Config{
		PollInterval:       100 * time.Millisecond,
		MinSpeechBytes:     1600,
		GrowthPerTick:      320,
		SilenceTicks:       5,
		GuardWindow:        800 * time.Millisecond,
		SpeechStartTimeout: 3 * time.Second,
		MaxDuration:        10 * time.Second,
		MaxBytes:           1 << 20,
		MinViableBytes:     4000,
		SettleDelay:        150 * time.Millisecond,
	}
}

// GraceConfig returns the shorter variant used for the post-utterance grace
// window, where the caller gets a brief chance to add a trailing thought.
func GraceConfig() Config {
	cfg := DefaultConfig()
	cfg.SpeechStartTimeout = 1200 * time.Millisecond
	cfg.MaxDuration = 5 * time.Second
	cfg.GuardWindow = 400 * time.Millisecond
	return cfg
}

// withDefaults fills zero-valued fields so a partially specified Config
// cannot produce a state machine that never terminates.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MinSpeechBytes <= 0 {
		c.MinSpeechBytes = d.MinSpeechBytes
	}
	if c.GrowthPerTick <= 0 {
		c.GrowthPerTick = d.GrowthPerTick
	}
	if c.SilenceTicks <= 0 {
		c.SilenceTicks = d.SilenceTicks
	}
	if c.SpeechStartTimeout <= 0 {
		c.SpeechStartTimeout = d.SpeechStartTimeout
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	return c
}
