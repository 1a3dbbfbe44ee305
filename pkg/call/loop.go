// Package call drives a whole conversation: answer, greet, alternate turns
// with the caller, and hang up cleanly however the call ends.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/ringline-go/ringline/pkg/agi"
	"github.com/ringline-go/ringline/pkg/turn"
)

// Turner is the slice of the turn orchestrator the loop drives.
type Turner interface {
	Run(ctx context.Context, agentText string) turn.Result
	Respond(ctx context.Context, utterance string) string
	Say(ctx context.Context, text string)
}

// Config tunes the conversation loop.
type Config struct {
	// Greeting opens the call.
	Greeting string
	// Goodbye closes it, whoever initiated the close.
	Goodbye string
	// Reprompt is spoken after a silent turn before trying again.
	Reprompt string
	// MaxTurns caps the conversation length.
	MaxTurns int
	// MaxDuration caps the whole call.
	MaxDuration time.Duration
	// MaxConsecutiveNoInput ends the call after this many silent turns in a
	// row.
	MaxConsecutiveNoInput int
	// ExitPhrases end the call when the caller says one of them.
	ExitPhrases []string
}

// DefaultConfig returns conversation settings for a receptionist-style call.
func DefaultConfig() Config {
	return Config{
		Greeting:              "Hello! Thanks for calling. How can I help you today?",
		Goodbye:               "Thanks for calling. Goodbye!",
		Reprompt:              "Sorry, I didn't catch that. Are you still there?",
		MaxTurns:              50,
		MaxDuration:           10 * time.Minute,
		MaxConsecutiveNoInput: 2,
		ExitPhrases:           []string{"goodbye", "bye bye", "hang up", "that's all", "that is all"},
	}
}

// Loop runs one call from answer to hangup.
type Loop struct {
	ch     *agi.Channel
	turns  Turner
	cfg    Config
	logger *slog.Logger
}

// New creates a conversation loop over an established channel.
func New(ch *agi.Channel, turns Turner, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{ch: ch, turns: turns, cfg: cfg, logger: logger}
}

// Run executes the conversation. It always leaves the call hung up, panics
// included: a crashing agent must not strand a caller on a silent line.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("conversation panicked, hanging up", "panic", r)
			l.ch.Verbose("voice agent internal error", 1)
			err = fmt.Errorf("conversation panicked: %v", r)
		}
		l.ch.Hangup()
	}()

	if l.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.MaxDuration)
		defer cancel()
	}

	if rep := l.ch.Answer(); !rep.OK() {
		if !l.ch.Session().Connected() {
			l.logger.Info("caller gone before answer")
			return nil
		}
		return fmt.Errorf("answering call: %v", rep)
	}
	l.logger.Info("call answered",
		"caller_id", l.ch.Session().CallerID(),
		"channel", l.ch.Session().ChannelName())

	agentText := l.cfg.Greeting
	noInput := 0
	for turnNo := 1; l.cfg.MaxTurns <= 0 || turnNo <= l.cfg.MaxTurns; turnNo++ {
		res := l.turns.Run(ctx, agentText)
		l.logger.Debug("turn complete",
			"turn", turnNo,
			"outcome", res.Outcome.String(),
			"interrupted", res.Interrupted)

		switch res.Outcome {
		case turn.OutcomeHangup:
			l.logger.Info("caller hung up", "turns", turnNo)
			return nil

		case turn.OutcomeNoInput:
			noInput++
			if noInput >= l.cfg.MaxConsecutiveNoInput {
				l.logger.Info("caller unresponsive, ending call", "turns", turnNo)
				l.turns.Say(ctx, l.cfg.Goodbye)
				return nil
			}
			agentText = l.cfg.Reprompt

		case turn.OutcomeUtterance:
			noInput = 0
			if l.isExitPhrase(res.Utterance) {
				l.logger.Info("caller said goodbye", "turns", turnNo)
				l.turns.Say(ctx, l.cfg.Goodbye)
				return nil
			}
			agentText = l.turns.Respond(ctx, res.Utterance)
		}

		if ctx.Err() != nil {
			l.logger.Info("call duration limit reached", "turns", turnNo)
			l.turns.Say(context.WithoutCancel(ctx), l.cfg.Goodbye)
			return nil
		}
	}

	l.logger.Info("turn limit reached, ending call")
	l.turns.Say(ctx, l.cfg.Goodbye)
	return nil
}

func (l *Loop) isExitPhrase(utterance string) bool {
	norm := " " + normalizeUtterance(utterance) + " "
	for _, phrase := range l.cfg.ExitPhrases {
		if strings.Contains(norm, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// normalizeUtterance lowercases and strips punctuation so "Goodbye!" matches
// the exit phrase "goodbye".
func normalizeUtterance(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
