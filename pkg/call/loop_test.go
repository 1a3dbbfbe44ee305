package call

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/ringline-go/ringline/pkg/agi"
	"github.com/ringline-go/ringline/pkg/turn"
)

func newTestChannel(t *testing.T) (*agi.Channel, *cmdCounter) {
	t.Helper()
	counter := &cmdCounter{}
	cmdR, cmdW := io.Pipe()
	repR, repW := io.Pipe()

	go func() {
		scanner := bufio.NewScanner(cmdR)
		for scanner.Scan() {
			counter.add(scanner.Text())
			if _, err := repW.Write([]byte("200 result=1\n")); err != nil {
				return
			}
		}
		repW.Close()
	}()

	env := "agi_channel: SIP/1000-1\nagi_callerid: 15551234567\n\n"
	ch := agi.NewChannel(io.MultiReader(strings.NewReader(env), repR), cmdW)
	ch.ParseEnvironment()
	t.Cleanup(func() {
		cmdW.Close()
		repR.Close()
	})
	return ch, counter
}

type cmdCounter struct {
	mu   sync.Mutex
	cmds []string
}

func (c *cmdCounter) add(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
}

func (c *cmdCounter) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.cmds {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

type fakeTurner struct {
	mu      sync.Mutex
	results []turn.Result
	prompts []string
	said    []string
	panics  bool
}

func (f *fakeTurner) Run(ctx context.Context, agentText string) turn.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("scripted failure")
	}
	f.prompts = append(f.prompts, agentText)
	if len(f.results) == 0 {
		return turn.Result{Outcome: turn.OutcomeNoInput}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeTurner) Respond(ctx context.Context, utterance string) string {
	return "you said " + utterance
}

func (f *fakeTurner) Say(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Greeting = "greeting"
	cfg.Goodbye = "goodbye line"
	cfg.Reprompt = "reprompt"
	return cfg
}

func TestConversationEndsOnExitPhrase(t *testing.T) {
	ch, counter := newTestChannel(t)
	ft := &fakeTurner{results: []turn.Result{
		{Outcome: turn.OutcomeUtterance, Utterance: "i have a question"},
		{Outcome: turn.OutcomeUtterance, Utterance: "okay goodbye"},
	}}

	if err := New(ch, ft, testConfig(), nil).Run(context.Background()); err != nil {
		t.Fatalf("Expected clean run, got %v", err)
	}

	if len(ft.prompts) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(ft.prompts))
	}
	if ft.prompts[0] != "greeting" {
		t.Errorf("Expected greeting first, got %q", ft.prompts[0])
	}
	if ft.prompts[1] != "you said i have a question" {
		t.Errorf("Expected generated reply as second prompt, got %q", ft.prompts[1])
	}
	if len(ft.said) != 1 || ft.said[0] != "goodbye line" {
		t.Errorf("Expected goodbye spoken once, got %v", ft.said)
	}
	if counter.count("HANGUP") != 1 {
		t.Error("Expected the call hung up")
	}
}

func TestConversationGivesUpAfterSilence(t *testing.T) {
	ch, _ := newTestChannel(t)
	ft := &fakeTurner{} // every turn is silence

	if err := New(ch, ft, testConfig(), nil).Run(context.Background()); err != nil {
		t.Fatalf("Expected clean run, got %v", err)
	}

	// Greeting turn silent, reprompt turn silent, then give up.
	if len(ft.prompts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(ft.prompts))
	}
	if ft.prompts[1] != "reprompt" {
		t.Errorf("Expected reprompt after silence, got %q", ft.prompts[1])
	}
	if len(ft.said) != 1 {
		t.Errorf("Expected goodbye before giving up, got %v", ft.said)
	}
}

func TestSilenceCounterResetsOnUtterance(t *testing.T) {
	ch, _ := newTestChannel(t)
	ft := &fakeTurner{results: []turn.Result{
		{Outcome: turn.OutcomeNoInput},
		{Outcome: turn.OutcomeUtterance, Utterance: "still here"},
		{Outcome: turn.OutcomeNoInput},
		{Outcome: turn.OutcomeNoInput},
	}}

	New(ch, ft, testConfig(), nil).Run(context.Background())

	// The utterance resets the counter, so the call survives to turn 4.
	if len(ft.prompts) != 4 {
		t.Errorf("Expected 4 turns, got %d", len(ft.prompts))
	}
}

func TestConversationEndsOnCallerHangup(t *testing.T) {
	ch, _ := newTestChannel(t)
	ft := &fakeTurner{results: []turn.Result{
		{Outcome: turn.OutcomeUtterance, Utterance: "hello"},
		{Outcome: turn.OutcomeHangup},
	}}

	if err := New(ch, ft, testConfig(), nil).Run(context.Background()); err != nil {
		t.Fatalf("Expected clean run, got %v", err)
	}
	if len(ft.said) != 0 {
		t.Errorf("Expected no goodbye to a dead line, got %v", ft.said)
	}
}

func TestPanicStillHangsUp(t *testing.T) {
	ch, counter := newTestChannel(t)
	ft := &fakeTurner{panics: true}

	err := New(ch, ft, testConfig(), nil).Run(context.Background())
	if err == nil {
		t.Fatal("Expected panic surfaced as error")
	}
	if counter.count("HANGUP") != 1 {
		t.Error("Expected hangup despite panic")
	}
}

func TestTurnLimit(t *testing.T) {
	ch, _ := newTestChannel(t)
	cfg := testConfig()
	cfg.MaxTurns = 3
	ft := &fakeTurner{results: []turn.Result{
		{Outcome: turn.OutcomeUtterance, Utterance: "one"},
		{Outcome: turn.OutcomeUtterance, Utterance: "two"},
		{Outcome: turn.OutcomeUtterance, Utterance: "three"},
		{Outcome: turn.OutcomeUtterance, Utterance: "four"},
	}}

	New(ch, ft, cfg, nil).Run(context.Background())
	if len(ft.prompts) != 3 {
		t.Errorf("Expected turn limit enforced, got %d turns", len(ft.prompts))
	}
	if len(ft.said) != 1 {
		t.Errorf("Expected goodbye at turn limit, got %v", ft.said)
	}
}

func TestIsExitPhrase(t *testing.T) {
	l := New(nil, nil, DefaultConfig(), nil)
	tests := []struct {
		utterance string
		exit      bool
	}{
		{"Goodbye!", true},
		{"okay that's all, thanks", true},
		{"please hang up now", true},
		{"goodbyes are hard", false},
		{"I want to buy something", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := l.isExitPhrase(tt.utterance); got != tt.exit {
			t.Errorf("Expected isExitPhrase(%q) = %v, got %v", tt.utterance, tt.exit, got)
		}
	}
}
