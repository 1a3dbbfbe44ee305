package turn

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ringline-go/ringline/pkg/agi"
	"github.com/ringline-go/ringline/pkg/audio"
	"github.com/ringline-go/ringline/pkg/bargein"
	"github.com/ringline-go/ringline/pkg/vad"
	"github.com/ringline-go/ringline/pkg/voice/stt"
)

// Transcriber converts a recording on disk to text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Synthesizer renders text to a playable file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, style string) (string, error)
}

// Responder produces the agent's next line.
type Responder interface {
	Reply(ctx context.Context, utterance string) (string, error)
}

// StreamOpener is implemented by transcription providers that support live
// sessions.
type StreamOpener interface {
	OpenStream(ctx context.Context, sampleRate int) (*stt.Stream, error)
}

// Outcome is how a turn ended.
type Outcome int

const (
	// OutcomeUtterance means the caller said something usable.
	OutcomeUtterance Outcome = iota
	// OutcomeNoInput means the caller stayed silent or produced nothing
	// transcribable.
	OutcomeNoInput
	// OutcomeHangup means the call dropped during the turn.
	OutcomeHangup
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUtterance:
		return "utterance"
	case OutcomeNoInput:
		return "no_input"
	case OutcomeHangup:
		return "hangup"
	default:
		return "unknown"
	}
}

// Result is one completed turn.
type Result struct {
	Outcome   Outcome
	Utterance string
	// Interrupted means the utterance came from barge-in during playback
	// rather than the listen phase.
	Interrupted bool
}

// Orchestrator runs turns over one call.
type Orchestrator struct {
	ch        *agi.Channel
	rec       *agi.Recorder
	stt       Transcriber
	tts       Synthesizer
	responder Responder
	streams   StreamOpener
	cfg       Config
	logger    *slog.Logger

	// Seams for tests; production uses the defaults.
	samplerFor func(path string) audio.Sampler
	convert    func(ctx context.Context, path string) (string, bool)
	statSize   func(path string) int64
	settle     func(d time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStreamOpener enables live transcription sessions.
func WithStreamOpener(so StreamOpener) Option {
	return func(o *Orchestrator) { o.streams = so }
}

// New builds an orchestrator over an established call.
func New(ch *agi.Channel, rec *agi.Recorder, tr Transcriber, syn Synthesizer, resp Responder, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		ch:        ch,
		rec:       rec,
		stt:       tr,
		tts:       syn,
		responder: resp,
		cfg:       cfg,
		logger:    logger,
		samplerFor: func(path string) audio.Sampler {
			return audio.FileSampler{Path: path}
		},
		convert: func(ctx context.Context, path string) (string, bool) {
			return audio.ConvertForTranscription(ctx, path, logger)
		},
		statSize: func(path string) int64 {
			return audio.FileSampler{Path: path}.Size()
		},
		settle: time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) connected() bool {
	return o.ch.Session().Connected()
}

// Run executes one turn: speak agentText with barge-in armed, then capture
// the caller's answer. An interruption that survives the echo filter becomes
// the turn's utterance directly and the listen phase is skipped.
func (o *Orchestrator) Run(ctx context.Context, agentText string) Result {
	if !o.connected() {
		return Result{Outcome: OutcomeHangup}
	}

	interruption := o.speak(ctx, agentText)
	if !o.connected() {
		return Result{Outcome: OutcomeHangup}
	}
	if interruption != nil && interruption.Activated {
		return Result{Outcome: OutcomeUtterance, Utterance: interruption.Transcript, Interrupted: true}
	}

	text, aborted := o.listen(ctx, o.cfg.Capture)
	if aborted {
		return Result{Outcome: OutcomeHangup}
	}

	if text != "" && o.cfg.GraceEnabled {
		extra, aborted := o.listen(ctx, o.cfg.Grace)
		if aborted {
			return Result{Outcome: OutcomeHangup}
		}
		if extra != "" {
			o.logger.Debug("grace window caught trailing speech", "extra", extra)
			text = text + " " + extra
		}
	}

	if text == "" {
		return Result{Outcome: OutcomeNoInput}
	}
	return Result{Outcome: OutcomeUtterance, Utterance: text}
}

// Respond asks the reply backend for the agent's next line, substituting the
// fallback when the backend fails or answers nothing.
func (o *Orchestrator) Respond(ctx context.Context, utterance string) string {
	if o.responder == nil {
		return o.cfg.FallbackUtterance
	}
	reply, err := o.responder.Reply(ctx, utterance)
	if err != nil {
		o.logger.Warn("reply backend failed, using fallback", "error", err)
		return o.cfg.FallbackUtterance
	}
	if strings.TrimSpace(reply) == "" {
		return o.cfg.FallbackUtterance
	}
	return reply
}

// Say plays text without listening afterwards and without barge-in, used for
// closing lines where the caller's answer no longer matters.
func (o *Orchestrator) Say(ctx context.Context, text string) {
	chunks := []string{text}
	if o.cfg.ChunkPlayback {
		chunks = splitSentences(text)
	}
	for _, chunk := range chunks {
		if !o.connected() {
			return
		}
		path, err := o.tts.Synthesize(ctx, chunk, o.cfg.Voice)
		if err != nil {
			o.logger.Warn("synthesis failed, skipping chunk", "error", err)
			continue
		}
		o.ch.StreamFile(path, "")
		os.Remove(path)
	}
}

// speak plays agentText with the barge-in monitor armed. Returns the
// monitor's verdict, or nil when no monitor could be started.
func (o *Orchestrator) speak(ctx context.Context, text string) *bargein.Result {
	chunks := []string{text}
	if o.cfg.ChunkPlayback {
		chunks = splitSentences(text)
	}

	files := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		path, err := o.tts.Synthesize(ctx, chunk, o.cfg.Voice)
		if err != nil {
			o.logger.Warn("synthesis failed, skipping chunk", "error", err)
			continue
		}
		files = append(files, path)
	}
	defer func() {
		for _, f := range files {
			os.Remove(f)
		}
	}()

	var mon *bargein.Monitor
	recording, err := o.rec.StartInbound("monitor")
	if err != nil {
		o.logger.Warn("barge-in recording unavailable, playing without monitor", "error", err)
	} else {
		mon = bargein.Start(ctx, o.cfg.Monitor, o.samplerFor(recording.Path()),
			recording.Path(), o.stt, text, o.connected, o.logger)
	}

	for _, f := range files {
		if !o.connected() {
			break
		}
		if mon != nil && mon.Triggered() {
			o.logger.Debug("cutting playback short, caller speaking")
			break
		}
		if rep := o.ch.StreamFile(f, ""); rep.Err != nil || !o.connected() {
			break
		}
	}

	var res *bargein.Result
	if mon != nil {
		if mon.Triggered() {
			r := o.joinMonitor(mon)
			res = &r
		} else {
			mon.Stop()
			r := mon.Wait()
			res = &r
		}
	}
	if recording != nil {
		recording.Stop()
		recording.Cleanup()
	}
	return res
}

// joinMonitor waits for a triggered monitor's transcript, bounded so a hung
// transcription cannot stall the call.
func (o *Orchestrator) joinMonitor(mon *bargein.Monitor) bargein.Result {
	join := o.cfg.MonitorJoinTimeout
	if join <= 0 {
		join = 6 * time.Second
	}
	done := make(chan bargein.Result, 1)
	go func() { done <- mon.Wait() }()
	select {
	case r := <-done:
		return r
	case <-time.After(join):
		o.logger.Warn("interruption transcript overdue, abandoning it")
		mon.Stop()
		return <-done
	}
}

// listen captures one utterance and transcribes it. aborted means the call
// dropped; every other failure is reported as simply hearing nothing.
func (o *Orchestrator) listen(ctx context.Context, cfg vad.Config) (text string, aborted bool) {
	recording, err := o.rec.StartInbound("user")
	if err != nil {
		if !o.connected() {
			return "", true
		}
		o.logger.Warn("capture recording unavailable", "error", err)
		return "", false
	}
	defer recording.Cleanup()

	live := o.startLive(ctx, recording.Path(), cfg)

	capture := vad.NewCapture(cfg, o.samplerFor(recording.Path()), o.connected, o.logger)
	result := capture.Run(ctx)
	recording.Stop()

	if result.State != vad.Finished {
		if live != nil {
			live.abort()
		}
		return "", result.State == vad.Aborted
	}

	o.settle(cfg.SettleDelay)
	if size := o.statSize(recording.Path()); size < cfg.MinViableBytes {
		o.logger.Debug("recording below viable size, discarding", "bytes", size)
		if live != nil {
			live.abort()
		}
		return "", false
	}

	if live != nil {
		if streamed, ok := live.finish(); ok {
			return streamed, false
		}
		o.logger.Debug("live transcription produced nothing, falling back")
	}

	converted, created := o.convert(ctx, recording.Path())
	if created {
		defer os.Remove(converted)
	}
	transcript, err := o.stt.TranscribeFile(ctx, converted)
	if err != nil {
		o.logger.Warn("transcription failed, treating as no input", "error", err)
		return "", false
	}
	return strings.TrimSpace(transcript), false
}

// splitSentences breaks text at sentence boundaries for chunked playback.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			// Only break when followed by whitespace or end of text, so
			// "3.5" stays together.
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				if s := strings.TrimSpace(b.String()); s != "" {
					out = append(out, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
