package agi

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultCommandTimeout bounds how long a single command waits for its reply
// line. Playback commands block for the duration of the sound file, so this
// must comfortably exceed the longest prompt chunk.
const DefaultCommandTimeout = 30 * time.Second

type readResult struct {
	line string
	err  error
}

// Channel is the call-control channel. Exactly one command may be outstanding
// at a time; SendCommand serializes all access, and no goroutine other than
// the one driving the call ever holds it.
//
// Incoming lines are drained by a dedicated reader goroutine so that reply
// waits can be bounded by a deadline even though the underlying stream has no
// read timeout of its own.
type Channel struct {
	session *Session
	w       *bufio.Writer
	lines   chan readResult
	closing chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithCommandTimeout overrides the per-command reply deadline.
func WithCommandTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the channel's logger.
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChannel wraps the control streams handed to the process by the switch
// (stdin/stdout in production) and starts the reader goroutine. The caller
// should parse the session environment before issuing commands.
func NewChannel(r io.Reader, w io.Writer, opts ...ChannelOption) *Channel {
	c := &Channel{
		session: NewSession(),
		w:       bufio.NewWriter(w),
		lines:   make(chan readResult, 8),
		closing: make(chan struct{}),
		timeout: DefaultCommandTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop(r)
	return c
}

// Session returns the call session this channel mutates.
func (c *Channel) Session() *Session {
	return c.session
}

func (c *Channel) readLoop(r io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		select {
		case c.lines <- readResult{line: scanner.Text()}:
		case <-c.closing:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case c.lines <- readResult{err: err}:
	case <-c.closing:
	}
}

// Close releases the reader goroutine once the call is over. Any command
// issued afterwards fails as disconnected. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.session.markDisconnected()
		close(c.closing)
	})
}

// ParseEnvironment consumes the metadata block the switch sends at session
// start: "key: value" lines terminated by a blank line. Malformed lines are
// skipped with a warning; a malformed block never kills the call.
func (c *Channel) ParseEnvironment() (*Session, error) {
	for {
		res, ok := <-c.lines
		if !ok || res.err != nil {
			c.session.markDisconnected()
			return c.session, WrapError(ErrorTypeTransport, "reading session environment", res.err)
		}
		line := strings.TrimRight(res.line, "\r")
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) == "" {
			c.logger.Warn("skipping malformed environment line", "line", line)
			continue
		}
		c.session.setEnv(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	c.logger.Debug("session environment parsed",
		"entries", c.session.EnvCount(),
		"channel", c.session.ChannelName(),
		"caller_id", c.session.CallerID())
	return c.session, nil
}

// SendCommand writes one command line and waits for its single reply line.
// Failures never panic and never return a Go error: they come back as a
// synthetic Reply carrying Err, and any hangup indication in the reply marks
// the session disconnected before the reply is returned.
func (c *Channel) SendCommand(cmd string) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Connected() {
		return syntheticReply(NewError(ErrorTypeDisconnected, "command on disconnected channel"))
	}

	if _, err := c.w.WriteString(cmd + "\n"); err != nil {
		c.session.markDisconnected()
		return syntheticReply(WrapError(ErrorTypeTransport, "writing command", err))
	}
	if err := c.w.Flush(); err != nil {
		c.session.markDisconnected()
		return syntheticReply(WrapError(ErrorTypeTransport, "flushing command", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case res, ok := <-c.lines:
		if !ok || res.err != nil {
			c.session.markDisconnected()
			return syntheticReply(WrapError(ErrorTypeTransport, "reading reply", res.err))
		}
		rep := parseReply(strings.TrimRight(res.line, "\r"))
		if rep.indicatesHangup() {
			c.logger.Info("hangup detected in reply", "command", firstWord(cmd), "reply", rep.Raw)
			c.session.markDisconnected()
		}
		return rep
	case <-timer.C:
		c.session.markDisconnected()
		return syntheticReply(NewError(ErrorTypeTimeout, fmt.Sprintf("no reply within %s", c.timeout)))
	}
}

// Answer brings the call up, idempotently. It first queries channel status;
// status 6 means already answered, in which case no ANSWER verb is issued.
func (c *Channel) Answer() Reply {
	if c.session.Answered() {
		return Reply{Raw: "200 result=0", Code: 200, Result: "0"}
	}
	status := c.SendCommand("CHANNEL STATUS")
	if status.OK() && status.Result == "6" {
		c.logger.Debug("channel already answered")
		c.session.markAnswered()
		return status
	}
	rep := c.SendCommand("ANSWER")
	if rep.OK() {
		c.session.markAnswered()
	}
	return rep
}

// Hangup tears the call down and marks the session disconnected regardless of
// what the switch replies.
func (c *Channel) Hangup() Reply {
	rep := c.SendCommand("HANGUP")
	c.session.markDisconnected()
	return rep
}

// StreamFile plays a sound file to the caller. The name is given without its
// extension, per protocol; escape lists DTMF digits that may interrupt
// playback ("" for none). Blocks until playback completes.
func (c *Channel) StreamFile(name, escape string) Reply {
	name = strings.TrimSuffix(name, ".wav")
	return c.SendCommand(fmt.Sprintf("STREAM FILE %s %q", name, escape))
}

// Verbose emits a message into the switch's own log at the given level.
func (c *Channel) Verbose(message string, level int) Reply {
	message = strings.ReplaceAll(message, "\n", " ")
	return c.SendCommand(fmt.Sprintf("VERBOSE %q %d", message, level))
}

// GetVariable fetches a channel variable. ok is false when the variable is
// unset or the call is down.
func (c *Channel) GetVariable(name string) (value string, ok bool) {
	rep := c.SendCommand(fmt.Sprintf("GET VARIABLE %s", name))
	if !rep.OK() || rep.Result != "1" {
		return "", false
	}
	return rep.Value(), true
}

// Exec runs a dialplan application on the channel.
func (c *Channel) Exec(app, args string) Reply {
	if args == "" {
		return c.SendCommand(fmt.Sprintf("EXEC %s", app))
	}
	return c.SendCommand(fmt.Sprintf("EXEC %s %s", app, args))
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
