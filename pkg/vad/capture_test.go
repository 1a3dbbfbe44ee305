package vad

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

// scriptedSampler replays a fixed growth sequence, repeating the final size
// once exhausted. One Size call per tick makes runs fully reproducible.
type scriptedSampler struct {
	sizes []int64
	i     int
}

func (s *scriptedSampler) Size() int64 {
	if s.i < len(s.sizes) {
		v := s.sizes[s.i]
		s.i++
		return v
	}
	return s.sizes[len(s.sizes)-1]
}

type constSampler int64

func (c constSampler) Size() int64 { return int64(c) }

type growingSampler struct {
	size int64
	step int64
}

func (g *growingSampler) Size() int64 {
	g.size += g.step
	return g.size
}

func fastConfig() Config {
	return Config{
		PollInterval:       time.Millisecond,
		MinSpeechBytes:     300,
		GrowthPerTick:      100,
		SilenceTicks:       5,
		GuardWindow:        0,
		SpeechStartTimeout: 50 * time.Millisecond,
		MaxDuration:        time.Second,
		MaxBytes:           1 << 20,
	}
}

func TestCaptureDeterministicFinish(t *testing.T) {
	// Speech starts at tick 3, growth stops after tick 5; the fifth
	// consecutive no-growth tick is tick 10, exactly where capture finishes.
	s := &scriptedSampler{sizes: []int64{0, 0, 500, 900, 1400}}
	c := NewCapture(fastConfig(), s, nil, nil)

	r := c.Run(context.Background())
	if r.State != Finished {
		t.Fatalf("Expected Finished, got %s", r.State)
	}
	if r.Ticks != 10 {
		t.Errorf("Expected finish at tick 10, got %d", r.Ticks)
	}
	if r.Bytes != 1400 {
		t.Errorf("Expected 1400 bytes, got %d", r.Bytes)
	}
	if r.SpeechAt != 3*time.Millisecond {
		t.Errorf("Expected speech at 3ms logical, got %v", r.SpeechAt)
	}
	if !r.Spoke() {
		t.Error("Expected Spoke to report true")
	}
}

func TestGuardWindowSuppressesEarlyFinish(t *testing.T) {
	cfg := fastConfig()
	cfg.SilenceTicks = 2

	// Speech at tick 1, then dead silence.
	without := NewCapture(cfg, &scriptedSampler{sizes: []int64{400}}, nil, nil).Run(context.Background())
	if without.State != Finished || without.Ticks != 3 {
		t.Fatalf("Expected ungated finish at tick 3, got %s at %d", without.State, without.Ticks)
	}

	cfg.GuardWindow = 5 * time.Millisecond
	with := NewCapture(cfg, &scriptedSampler{sizes: []int64{400}}, nil, nil).Run(context.Background())
	if with.State != Finished {
		t.Fatalf("Expected Finished, got %s", with.State)
	}
	// Silence ticks only start counting once the guard expires at 5ms after
	// speech start (tick 6), so the second one lands on tick 7.
	if with.Ticks != 7 {
		t.Errorf("Expected guarded finish at tick 7, got %d", with.Ticks)
	}
}

func TestGrowthDuringGuardKeepsUtteranceAlive(t *testing.T) {
	cfg := fastConfig()
	cfg.SilenceTicks = 2
	cfg.GuardWindow = 3 * time.Millisecond

	// Pause inside the guard, then more speech, then real trailing silence.
	s := &scriptedSampler{sizes: []int64{400, 400, 400, 900, 1400}}
	r := NewCapture(cfg, s, nil, nil).Run(context.Background())
	if r.State != Finished {
		t.Fatalf("Expected Finished, got %s", r.State)
	}
	if r.Bytes != 1400 {
		t.Errorf("Expected resumed speech captured, got %d bytes", r.Bytes)
	}
}

func TestSpeechStartTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.SpeechStartTimeout = 5 * time.Millisecond

	r := NewCapture(cfg, constSampler(0), nil, nil).Run(context.Background())
	if r.State != TimedOut {
		t.Fatalf("Expected TimedOut, got %s", r.State)
	}
	if r.Ticks != 5 {
		t.Errorf("Expected timeout at tick 5, got %d", r.Ticks)
	}
	if r.Spoke() {
		t.Error("Expected no speech detected")
	}
}

func TestByteCapStopsRunawayRecording(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxBytes = 10000

	r := NewCapture(cfg, &growingSampler{step: 4000}, nil, nil).Run(context.Background())
	if r.State != TimedOut {
		t.Fatalf("Expected TimedOut at byte cap, got %s", r.State)
	}
	if r.Ticks != 3 {
		t.Errorf("Expected cap hit at tick 3, got %d", r.Ticks)
	}
}

func TestAbortOnDisconnect(t *testing.T) {
	calls := 0
	connected := func() bool {
		calls++
		return calls < 4
	}
	r := NewCapture(fastConfig(), constSampler(0), connected, nil).Run(context.Background())
	if r.State != Aborted {
		t.Fatalf("Expected Aborted, got %s", r.State)
	}
	if r.Ticks != 4 {
		t.Errorf("Expected abort on tick 4, got %d", r.Ticks)
	}
}

func TestAbortOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewCapture(fastConfig(), constSampler(0), nil, nil).Run(ctx)
	if r.State != Aborted {
		t.Errorf("Expected Aborted on cancelled context, got %s", r.State)
	}
}

// Every configuration must terminate within its own bounds, whatever the
// growth pattern. Exercised over randomized configs against both a silent
// line and a line that never stops growing.
func TestTerminationBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		cfg := Config{
			PollInterval:       time.Millisecond,
			MinSpeechBytes:     int64(1 + rng.Intn(5000)),
			GrowthPerTick:      int64(1 + rng.Intn(1000)),
			SilenceTicks:       1 + rng.Intn(10),
			GuardWindow:        time.Duration(rng.Intn(20)) * time.Millisecond,
			SpeechStartTimeout: time.Duration(1+rng.Intn(30)) * time.Millisecond,
			MaxDuration:        time.Duration(5+rng.Intn(60)) * time.Millisecond,
			MaxBytes:           int64(1 + rng.Intn(100000)),
		}

		silent := NewCapture(cfg, constSampler(0), nil, nil).Run(context.Background())
		if silent.State != TimedOut {
			t.Fatalf("config %d: Expected silent line to time out, got %s", i, silent.State)
		}
		if silent.Elapsed > cfg.MaxDuration+cfg.PollInterval {
			t.Fatalf("config %d: silent run overran bound: %v > %v", i, silent.Elapsed, cfg.MaxDuration)
		}

		noisy := NewCapture(cfg, &growingSampler{step: 100000}, nil, nil).Run(context.Background())
		if noisy.State != TimedOut {
			t.Fatalf("config %d: Expected runaway line to time out, got %s", i, noisy.State)
		}
		if noisy.Elapsed > cfg.MaxDuration+cfg.PollInterval {
			t.Fatalf("config %d: noisy run overran bound: %v > %v", i, noisy.Elapsed, cfg.MaxDuration)
		}
	}
}

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.PollInterval <= 0 || cfg.SilenceTicks <= 0 || cfg.MaxDuration <= 0 || cfg.MaxBytes <= 0 {
		t.Error("Expected zero config to be filled with safe defaults")
	}
}
