package bargein

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ringline-go/ringline/pkg/audio"
)

// Config tunes the barge-in monitor. Byte thresholds refer to the inbound
// recording file, same units as utterance capture.
type Config struct {
	// PollInterval is the monitor's probe spacing. Kept tighter than capture
	// polling so a Stop takes effect quickly.
	PollInterval time.Duration

	// ArmDelay ignores the recording entirely for this long after start, so
	// the stream's own setup burst is not read as caller speech.
	ArmDelay time.Duration

	// OnsetBytes is the growth above the post-arm baseline that counts as
	// the caller starting to talk over the agent.
	OnsetBytes int64

	// GrowthPerTick and SilenceTicks bound the end of the interruption the
	// same way capture bounds an utterance.
	GrowthPerTick int64
	SilenceTicks  int

	// GuardWindow suppresses end-of-speech counting right after onset.
	GuardWindow time.Duration

	// MaxCapture bounds how long the monitor follows an interruption before
	// transcribing whatever it has.
	MaxCapture time.Duration

	// EchoSimilarity is the word-overlap threshold for the self-echo filter.
	EchoSimilarity float64

	// TranscribeTimeout bounds the transcription call.
	TranscribeTimeout time.Duration
}

// DefaultConfig returns monitor thresholds tuned for speaking over telephony
// prompts: onset needs 128 ms of audio above baseline, and end of speech is
// 150 ms of no growth.
func DefaultConfig() Config {
	return Config{
		PollInterval:      50 * time.Millisecond,
		ArmDelay:          250 * time.Millisecond,
		OnsetBytes:        2048,
		GrowthPerTick:     256,
		SilenceTicks:      3,
		GuardWindow:       300 * time.Millisecond,
		MaxCapture:        4 * time.Second,
		EchoSimilarity:    DefaultEchoSimilarity,
		TranscribeTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.OnsetBytes <= 0 {
		c.OnsetBytes = d.OnsetBytes
	}
	if c.GrowthPerTick <= 0 {
		c.GrowthPerTick = d.GrowthPerTick
	}
	if c.SilenceTicks <= 0 {
		c.SilenceTicks = d.SilenceTicks
	}
	if c.MaxCapture <= 0 {
		c.MaxCapture = d.MaxCapture
	}
	if c.EchoSimilarity <= 0 {
		c.EchoSimilarity = d.EchoSimilarity
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = d.TranscribeTimeout
	}
	return c
}

// Transcriber is the slice of the speech-to-text surface the monitor needs.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Result is the monitor's verdict for one playback.
type Result struct {
	// Activated means the caller genuinely interrupted: voice was detected
	// and its transcript survived the echo filter.
	Activated bool
	// Transcript is the caller's words, set only when Activated.
	Transcript string
	// VoiceDetected means audio onset was seen, even if the transcript was
	// later discarded as echo or noise.
	VoiceDetected bool
}

// Monitor is one in-flight barge-in watch. It owns no switch resources: the
// caller starts and stops the recording stream, the monitor only reads.
type Monitor struct {
	cfg        Config
	sampler    audio.Sampler
	path       string
	transcribe Transcriber
	agentText  string
	connected  func() bool
	logger     *slog.Logger

	cancel    context.CancelFunc
	triggered atomic.Bool
	resultCh  chan Result

	waitOnce sync.Once
	result   Result
}

// Start launches the monitor goroutine over an already-started recording at
// path. agentText is what the agent is currently saying, used by the echo
// filter. Stop the monitor (or cancel ctx) before stopping the recording.
func Start(ctx context.Context, cfg Config, sampler audio.Sampler, path string, tr Transcriber, agentText string, connected func() bool, logger *slog.Logger) *Monitor {
	if connected == nil {
		connected = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		cfg:        cfg.withDefaults(),
		sampler:    sampler,
		path:       path,
		transcribe: tr,
		agentText:  agentText,
		connected:  connected,
		logger:     logger,
		cancel:     cancel,
		resultCh:   make(chan Result, 1),
	}
	go m.run(ctx)
	return m
}

// Triggered reports whether voice onset has been observed. The playback loop
// polls this between chunks to cut the prompt short.
func (m *Monitor) Triggered() bool {
	return m.triggered.Load()
}

// Stop cancels the monitor. Wait still returns, within about one poll
// interval when nothing was detected.
func (m *Monitor) Stop() {
	m.cancel()
}

// Wait blocks until the monitor has delivered its verdict. Safe to call more
// than once.
func (m *Monitor) Wait() Result {
	m.waitOnce.Do(func() {
		m.result = <-m.resultCh
	})
	return m.result
}

func (m *Monitor) run(ctx context.Context) {
	var res Result
	defer func() {
		m.resultCh <- res
		m.cancel()
	}()

	cfg := m.cfg
	armTicks := int(cfg.ArmDelay / cfg.PollInterval)

	var (
		baseline   int64
		last       int64
		size       int64
		speechTick int
		silence    int
		capturing  bool
	)

	timer := time.NewTimer(cfg.PollInterval)
	defer timer.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(cfg.PollInterval)

		if !m.connected() {
			return
		}

		size = m.sampler.Size()
		if tick <= armTicks {
			baseline = size
			continue
		}

		if !capturing {
			if size-baseline >= cfg.OnsetBytes {
				capturing = true
				speechTick = tick
				last = size
				res.VoiceDetected = true
				m.triggered.Store(true)
				m.logger.Debug("voice onset over playback", "tick", tick, "bytes", size)
			}
			continue
		}

		sinceOnset := time.Duration(tick-speechTick) * cfg.PollInterval
		if sinceOnset >= cfg.MaxCapture {
			break
		}

		growth := size - last
		last = size
		if growth >= cfg.GrowthPerTick {
			silence = 0
			continue
		}
		if sinceOnset < cfg.GuardWindow {
			continue
		}
		silence++
		if silence >= cfg.SilenceTicks {
			break
		}
	}

	res = m.judge(ctx, res)
}

// judge transcribes the captured interruption and applies the echo filter.
// The recording stream may still be live, so transcription runs over a
// stable snapshot of the file.
func (m *Monitor) judge(ctx context.Context, res Result) Result {
	snapshot, cleanup, err := snapshotFile(m.path)
	if err != nil {
		m.logger.Warn("snapshotting interruption failed, using live file", "error", err)
		snapshot = m.path
	}
	if cleanup != nil {
		defer cleanup()
	}

	tctx, tcancel := context.WithTimeout(ctx, m.cfg.TranscribeTimeout)
	defer tcancel()

	text, err := m.transcribe.TranscribeFile(tctx, snapshot)
	if err != nil {
		m.logger.Warn("interruption transcription failed, treating as noise", "error", err)
		return res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		m.logger.Debug("voice detected but no words, treating as noise")
		return res
	}
	if IsEcho(text, m.agentText, m.cfg.EchoSimilarity) {
		m.logger.Debug("discarding self-echo", "transcript", text)
		return res
	}

	res.Activated = true
	res.Transcript = text
	m.logger.Info("caller interrupted", "transcript", text)
	return res
}

func snapshotFile(path string) (string, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	out := filepath.Join(os.TempDir(), fmt.Sprintf("bargein_%s.wav", uuid.NewString()[:8]))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", nil, err
	}
	return out, func() { os.Remove(out) }, nil
}
