// Command ringline-agi is the voice agent the switch spawns per call. The
// control protocol runs over stdin/stdout, so all logging goes to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ringline-go/ringline/internal/calibration"
	"github.com/ringline-go/ringline/internal/config"
	"github.com/ringline-go/ringline/internal/dotenv"
	"github.com/ringline-go/ringline/pkg/agi"
	"github.com/ringline-go/ringline/pkg/call"
	"github.com/ringline-go/ringline/pkg/turn"
	"github.com/ringline-go/ringline/pkg/voice/responder"
	"github.com/ringline-go/ringline/pkg/voice/stt"
	"github.com/ringline-go/ringline/pkg/voice/tts"
)

func main() {
	if err := dotenv.Load(".env", "/etc/ringline/ringline.env"); err != nil {
		fmt.Fprintln(os.Stderr, "loading env files:", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("call failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	cal, err := calibration.Load(cfg.CalibrationPath)
	if err != nil {
		return err
	}

	turnCfg := turn.DefaultConfig()
	turnCfg.Capture = cal.ApplyCapture(turnCfg.Capture)
	turnCfg.Monitor = cal.ApplyBargeIn(turnCfg.Monitor)
	turnCfg.StreamingASR = cfg.StreamingASR
	turnCfg.Voice = cfg.Voice

	whisper := stt.NewWhisperWorker(cfg.WorkerURL, stt.WithWhisperLogger(logger))

	var synth turn.Synthesizer
	switch cfg.TTSProvider {
	case "polly":
		synth = tts.NewPolly(tts.PollyConfig{
			Region:  cfg.PollyRegion,
			VoiceID: cfg.PollyVoice,
			Engine:  cfg.PollyEngine,
			OutDir:  cfg.RecordingDir,
		}, nil, logger)
	default:
		synth = tts.NewKokoroWorker(cfg.WorkerURL, tts.WithKokoroLogger(logger))
	}

	reply := responder.NewOllama(cfg.OllamaURL, cfg.OllamaModel,
		responder.WithSystemPrompt(cfg.SystemPrompt),
		responder.WithOllamaLogger(logger))

	ch := agi.NewChannel(in, out,
		agi.WithCommandTimeout(cfg.CommandTimeout),
		agi.WithLogger(logger))
	defer ch.Close()
	sess, err := ch.ParseEnvironment()
	if err != nil {
		return fmt.Errorf("reading session environment: %w", err)
	}
	logger = logger.With("channel", sess.ChannelName(), "caller_id", sess.CallerID())

	// A dead worker is survivable (turns degrade to silence handling), but
	// worth knowing about before the first turn.
	hctx, hcancel := context.WithTimeout(ctx, 2*time.Second)
	if err := whisper.Health(hctx); err != nil {
		logger.Warn("transcription worker unhealthy", "error", err)
	}
	hcancel()

	var opts []turn.Option
	if cfg.StreamingASR {
		opts = append(opts, turn.WithStreamOpener(whisper))
	}

	rec := agi.NewRecorder(ch, cfg.RecordingDir, logger)
	orch := turn.New(ch, rec, whisper, synth, reply, turnCfg, logger, opts...)

	loopCfg := call.DefaultConfig()
	loopCfg.MaxDuration = cfg.MaxCallDuration
	if cfg.Greeting != "" {
		loopCfg.Greeting = cfg.Greeting
	}
	if cfg.Goodbye != "" {
		loopCfg.Goodbye = cfg.Goodbye
	}

	return call.New(ch, orch, loopCfg, logger).Run(ctx)
}
