package vad

import (
	"context"
	"log/slog"
	"time"

	"github.com/ringline-go/ringline/pkg/audio"
)

// State is the capture state machine's position.
type State int

const (
	// Armed means waiting for speech to start.
	Armed State = iota
	// SpeechActive means the recording is growing at speech rate.
	SpeechActive
	// TrailingSilence means growth has paused and silence ticks are counting.
	TrailingSilence
	// Finished is the terminal success state: trailing silence completed.
	Finished
	// TimedOut is terminal: speech never started, or a hard bound was hit.
	TimedOut
	// Aborted is terminal: the call dropped or the caller cancelled.
	Aborted
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case SpeechActive:
		return "speech_active"
	case TrailingSilence:
		return "trailing_silence"
	case Finished:
		return "finished"
	case TimedOut:
		return "timed_out"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result describes how a capture run ended. Elapsed is logical time, the
// tick count times the poll interval, so identical growth sequences always
// produce identical results regardless of scheduling jitter.
type Result struct {
	State    State
	Bytes    int64
	Ticks    int
	Elapsed  time.Duration
	SpeechAt time.Duration
}

// Spoke reports whether speech was ever detected during the run.
func (r Result) Spoke() bool {
	return r.SpeechAt > 0
}

// Capture runs the utterance capture state machine over one recording.
type Capture struct {
	cfg       Config
	sampler   audio.Sampler
	connected func() bool
	logger    *slog.Logger
}

// NewCapture builds a capture run. connected is consulted every tick; when it
// reports false the run ends in Aborted. A nil connected means always up.
func NewCapture(cfg Config, sampler audio.Sampler, connected func() bool, logger *slog.Logger) *Capture {
	if connected == nil {
		connected = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{cfg: cfg.withDefaults(), sampler: sampler, connected: connected, logger: logger}
}

// Run polls the sampler until a terminal state is reached. Every path out of
// the loop is bounded: speech-start timeout while armed, silence completion
// or the overall duration/byte caps once speaking, and disconnect or context
// cancellation at any tick.
func (c *Capture) Run(ctx context.Context) Result {
	cfg := c.cfg
	state := Armed
	var (
		size       int64
		last       int64
		speechTick int
		silence    int
	)

	timer := time.NewTimer(cfg.PollInterval)
	defer timer.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return c.done(Aborted, size, tick-1, speechTick)
		case <-timer.C:
		}
		timer.Reset(cfg.PollInterval)

		if !c.connected() {
			return c.done(Aborted, size, tick, speechTick)
		}

		size = c.sampler.Size()
		elapsed := time.Duration(tick) * cfg.PollInterval

		if size > cfg.MaxBytes || elapsed >= cfg.MaxDuration {
			return c.done(TimedOut, size, tick, speechTick)
		}

		switch state {
		case Armed:
			if size >= cfg.MinSpeechBytes {
				state = SpeechActive
				speechTick = tick
				last = size
				c.logger.Debug("speech started", "tick", tick, "bytes", size)
				continue
			}
			if elapsed >= cfg.SpeechStartTimeout {
				return c.done(TimedOut, size, tick, speechTick)
			}

		case SpeechActive, TrailingSilence:
			growth := size - last
			last = size
			if growth >= cfg.GrowthPerTick {
				state = SpeechActive
				silence = 0
				continue
			}
			// Inside the guard window a pause cannot end the utterance.
			sinceSpeech := time.Duration(tick-speechTick) * cfg.PollInterval
			if sinceSpeech < cfg.GuardWindow {
				continue
			}
			state = TrailingSilence
			silence++
			if silence >= cfg.SilenceTicks {
				return c.done(Finished, size, tick, speechTick)
			}
		}
	}
}

func (c *Capture) done(state State, size int64, ticks, speechTick int) Result {
	r := Result{
		State:   state,
		Bytes:   size,
		Ticks:   ticks,
		Elapsed: time.Duration(ticks) * c.cfg.PollInterval,
	}
	if speechTick > 0 {
		r.SpeechAt = time.Duration(speechTick) * c.cfg.PollInterval
	}
	c.logger.Debug("capture finished",
		"state", state.String(), "ticks", r.Ticks, "bytes", r.Bytes, "spoke", r.Spoke())
	return r
}
