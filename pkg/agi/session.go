// Package agi implements the synchronous, line-oriented call-control channel
// used to drive a telephony switch: session metadata, single-outstanding
// command/reply exchange, typed channel operations, and managed recording
// streams. The protocol is strictly one text command line out, one text reply
// line back; the channel is never accessed concurrently.
package agi

import (
	"sync"
)

// Session holds the per-call state delivered by the switch at startup plus the
// two lifecycle flags every other component observes.
//
// Connected is monotonic: it starts true and can only ever transition to
// false. Nothing in this package (or any other) sets it back.
type Session struct {
	mu        sync.RWMutex
	env       map[string]string
	connected bool
	answered  bool
}

// NewSession creates a connected, unanswered session with no metadata.
func NewSession() *Session {
	return &Session{
		env:       make(map[string]string),
		connected: true,
	}
}

// Connected reports whether the call is still up.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Answered reports whether the call has been answered.
func (s *Session) Answered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answered
}

// Env returns the metadata value for key, or "" if absent.
func (s *Session) Env(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env[key]
}

// EnvCount returns the number of metadata entries parsed at session start.
func (s *Session) EnvCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.env)
}

// CallerID returns the caller identifier the switch supplied, or "" when the
// switch withheld it.
func (s *Session) CallerID() string {
	return s.Env("agi_callerid")
}

// ChannelName returns the switch-side channel name for this call.
func (s *Session) ChannelName() string {
	return s.Env("agi_channel")
}

func (s *Session) setEnv(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env[key] = value
}

// markDisconnected flips Connected to false. There is deliberately no inverse.
func (s *Session) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *Session) markAnswered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered = true
}
