package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ringline-go/ringline/pkg/audio"
)

// synthClient is the slice of the Polly API the provider uses, narrow so
// tests can substitute a fake.
type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Polly provider.
type PollyConfig struct {
	// Region is the AWS region; empty defers to the SDK's resolution chain.
	Region string
	// VoiceID is the Polly voice best suited to the call language.
	VoiceID string
	// Engine selects standard or neural synthesis.
	Engine string
	// SampleRate is the PCM rate requested, which should match the
	// telephony leg (8000).
	SampleRate int
	// OutDir is where rendered audio files are written.
	OutDir string
	// Timeout bounds one synthesis call.
	Timeout time.Duration
	// Replacements are pronunciation fixups applied before synthesis.
	Replacements map[string]string
}

func (c PollyConfig) withDefaults() PollyConfig {
	if c.VoiceID == "" {
		c.VoiceID = "Joanna"
	}
	if c.Engine == "" {
		c.Engine = "neural"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 8000
	}
	if c.OutDir == "" {
		c.OutDir = os.TempDir()
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Polly synthesizes speech with Amazon Polly, wrapping the returned PCM into
// WAV files the switch can play. The AWS client is resolved lazily on first
// use so constructing the provider never needs credentials.
type Polly struct {
	cfg    PollyConfig
	logger *slog.Logger

	mu     sync.Mutex
	client synthClient
}

// NewPolly creates the provider. Pass a nil client for production; tests
// inject a fake.
func NewPolly(cfg PollyConfig, client synthClient, logger *slog.Logger) *Polly {
	if logger == nil {
		logger = slog.Default()
	}
	return &Polly{cfg: cfg.withDefaults(), client: client, logger: logger}
}

func (p *Polly) Name() string {
	return "polly"
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if p.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(p.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

// Synthesize renders text to a WAV file under OutDir and returns its path.
func (p *Polly) Synthesize(ctx context.Context, text, style string) (string, error) {
	text = PrepareText(text, p.cfg.Replacements)
	if text == "" {
		return "", fmt.Errorf("nothing to synthesize")
	}

	client, err := p.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	voice := p.cfg.VoiceID
	if style != "" {
		voice = style
	}

	start := time.Now()
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         &text,
		VoiceId:      pollytypes.VoiceId(voice),
		Engine:       pollytypes.Engine(p.cfg.Engine),
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   strPtr(strconv.Itoa(p.cfg.SampleRate)),
	})
	if err != nil {
		return "", classifyPollyError(err)
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return "", fmt.Errorf("reading synthesis stream: %w", err)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("synthesis returned no audio")
	}

	path := filepath.Join(p.cfg.OutDir, fmt.Sprintf("polly_%d_%s.wav", time.Now().Unix(), uuid.NewString()[:8]))
	if err := audio.WriteWAV(path, pcm, p.cfg.SampleRate); err != nil {
		return "", err
	}

	p.logger.Debug("synthesis complete",
		"voice", voice,
		"chars", len(text),
		"path", path,
		"took", time.Since(start))
	return path, nil
}

// classifyPollyError folds the SDK's error zoo into something the caller can
// log usefully.
func classifyPollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("polly throttled: %w", err)
		case "TextLengthExceededException":
			return fmt.Errorf("polly text too long: %w", err)
		case "InvalidSampleRateException":
			return fmt.Errorf("polly rejected sample rate: %w", err)
		default:
			return fmt.Errorf("polly error %s: %w", apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("polly request failed: %w", err)
}

func strPtr(s string) *string { return &s }
