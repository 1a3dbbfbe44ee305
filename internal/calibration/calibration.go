// Package calibration loads per-site threshold overrides for voice activity
// detection. Lines, codecs, and handsets differ enough between deployments
// that the byte-growth thresholds sometimes need field tuning; operators ship
// a JSON file rather than a rebuild.
package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ringline-go/ringline/pkg/bargein"
	"github.com/ringline-go/ringline/pkg/vad"
)

// schema rejects malformed calibration files before any value is applied; a
// typo'd threshold silently breaking speech detection is a miserable field
// debug.
const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "capture": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "poll_interval_ms":       {"type": "integer", "minimum": 10, "maximum": 1000},
        "min_speech_bytes":       {"type": "integer", "minimum": 1},
        "growth_per_tick":        {"type": "integer", "minimum": 1},
        "silence_ticks":          {"type": "integer", "minimum": 1, "maximum": 100},
        "guard_window_ms":        {"type": "integer", "minimum": 0, "maximum": 10000},
        "speech_start_timeout_ms":{"type": "integer", "minimum": 100},
        "max_duration_ms":        {"type": "integer", "minimum": 1000},
        "max_bytes":              {"type": "integer", "minimum": 1},
        "min_viable_bytes":       {"type": "integer", "minimum": 0}
      }
    },
    "barge_in": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "poll_interval_ms": {"type": "integer", "minimum": 10, "maximum": 1000},
        "arm_delay_ms":     {"type": "integer", "minimum": 0, "maximum": 5000},
        "onset_bytes":      {"type": "integer", "minimum": 1},
        "growth_per_tick":  {"type": "integer", "minimum": 1},
        "silence_ticks":    {"type": "integer", "minimum": 1, "maximum": 100},
        "guard_window_ms":  {"type": "integer", "minimum": 0, "maximum": 10000},
        "echo_similarity":  {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

// Calibration holds the optional overrides from one file. Nil pointer means
// the field was absent and the default stands.
type Calibration struct {
	Capture *CaptureOverrides `json:"capture,omitempty"`
	BargeIn *BargeInOverrides `json:"barge_in,omitempty"`
}

type CaptureOverrides struct {
	PollIntervalMs       *int   `json:"poll_interval_ms,omitempty"`
	MinSpeechBytes       *int64 `json:"min_speech_bytes,omitempty"`
	GrowthPerTick        *int64 `json:"growth_per_tick,omitempty"`
	SilenceTicks         *int   `json:"silence_ticks,omitempty"`
	GuardWindowMs        *int   `json:"guard_window_ms,omitempty"`
	SpeechStartTimeoutMs *int   `json:"speech_start_timeout_ms,omitempty"`
	MaxDurationMs        *int   `json:"max_duration_ms,omitempty"`
	MaxBytes             *int64 `json:"max_bytes,omitempty"`
	MinViableBytes       *int64 `json:"min_viable_bytes,omitempty"`
}

type BargeInOverrides struct {
	PollIntervalMs *int     `json:"poll_interval_ms,omitempty"`
	ArmDelayMs     *int     `json:"arm_delay_ms,omitempty"`
	OnsetBytes     *int64   `json:"onset_bytes,omitempty"`
	GrowthPerTick  *int64   `json:"growth_per_tick,omitempty"`
	SilenceTicks   *int     `json:"silence_ticks,omitempty"`
	GuardWindowMs  *int     `json:"guard_window_ms,omitempty"`
	EchoSimilarity *float64 `json:"echo_similarity,omitempty"`
}

var compiledSchema = jsonschema.MustCompileString("calibration.json", schema)

// Load reads and validates a calibration file. A missing path is not an
// error: it returns an empty calibration that overrides nothing.
func Load(path string) (*Calibration, error) {
	if path == "" {
		return &Calibration{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Calibration{}, nil
		}
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing calibration file %q: %w", path, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid calibration file %q: %w", path, err)
	}

	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding calibration file %q: %w", path, err)
	}
	return &c, nil
}

// ApplyCapture overlays the file's capture overrides on cfg.
func (c *Calibration) ApplyCapture(cfg vad.Config) vad.Config {
	o := c.Capture
	if o == nil {
		return cfg
	}
	if o.PollIntervalMs != nil {
		cfg.PollInterval = time.Duration(*o.PollIntervalMs) * time.Millisecond
	}
	if o.MinSpeechBytes != nil {
		cfg.MinSpeechBytes = *o.MinSpeechBytes
	}
	if o.GrowthPerTick != nil {
		cfg.GrowthPerTick = *o.GrowthPerTick
	}
	if o.SilenceTicks != nil {
		cfg.SilenceTicks = *o.SilenceTicks
	}
	if o.GuardWindowMs != nil {
		cfg.GuardWindow = time.Duration(*o.GuardWindowMs) * time.Millisecond
	}
	if o.SpeechStartTimeoutMs != nil {
		cfg.SpeechStartTimeout = time.Duration(*o.SpeechStartTimeoutMs) * time.Millisecond
	}
	if o.MaxDurationMs != nil {
		cfg.MaxDuration = time.Duration(*o.MaxDurationMs) * time.Millisecond
	}
	if o.MaxBytes != nil {
		cfg.MaxBytes = *o.MaxBytes
	}
	if o.MinViableBytes != nil {
		cfg.MinViableBytes = *o.MinViableBytes
	}
	return cfg
}

// ApplyBargeIn overlays the file's barge-in overrides on cfg.
func (c *Calibration) ApplyBargeIn(cfg bargein.Config) bargein.Config {
	o := c.BargeIn
	if o == nil {
		return cfg
	}
	if o.PollIntervalMs != nil {
		cfg.PollInterval = time.Duration(*o.PollIntervalMs) * time.Millisecond
	}
	if o.ArmDelayMs != nil {
		cfg.ArmDelay = time.Duration(*o.ArmDelayMs) * time.Millisecond
	}
	if o.OnsetBytes != nil {
		cfg.OnsetBytes = *o.OnsetBytes
	}
	if o.GrowthPerTick != nil {
		cfg.GrowthPerTick = *o.GrowthPerTick
	}
	if o.SilenceTicks != nil {
		cfg.SilenceTicks = *o.SilenceTicks
	}
	if o.GuardWindowMs != nil {
		cfg.GuardWindow = time.Duration(*o.GuardWindowMs) * time.Millisecond
	}
	if o.EchoSimilarity != nil {
		cfg.EchoSimilarity = *o.EchoSimilarity
	}
	return cfg
}
