package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Stream is a live transcription session over a websocket to the model
// worker. Audio chunks go up as they are recorded; partial and final
// transcript deltas come back, so the final text is ready almost as soon as
// the caller stops talking.
//
// Writes are serialized internally; reads happen on a single internal
// goroutine. Close is safe to call at any time and more than once.
type Stream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	deltas  chan Delta
	done    chan struct{}

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

type streamMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"is_final,omitempty"`
	Error string `json:"error,omitempty"`
}

// OpenStream dials a streaming transcription session for raw PCM at the
// given sample rate. The caller must Close the stream.
func (w *WhisperWorker) OpenStream(ctx context.Context, sampleRate int) (*Stream, error) {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing worker URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/stt/stream"
	u.RawQuery = fmt.Sprintf("sample_rate=%d", sampleRate)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing transcription stream (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing transcription stream: %w", err)
	}

	s := &Stream{
		conn:   conn,
		logger: w.logger,
		deltas: make(chan Delta, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// SendAudio ships one chunk of raw audio to the worker.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("sending audio chunk: %w", err)
	}
	return nil
}

// Finalize tells the worker no more audio is coming; the worker flushes its
// remaining transcript deltas and then completes the session.
func (s *Stream) Finalize() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg, _ := json.Marshal(streamMessage{Type: "finalize"})
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("finalizing stream: %w", err)
	}
	return nil
}

// Deltas delivers transcript updates. Closed when the session ends.
func (s *Stream) Deltas() <-chan Delta {
	return s.deltas
}

// Done is closed when the worker has completed the session or it failed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended, nil for a clean completion.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close tears the session down.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer close(s.deltas)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(err)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("unparsable stream message", "error", err)
			continue
		}
		switch msg.Type {
		case "transcript":
			d := Delta{Text: msg.Text, Final: msg.Final}
			select {
			case s.deltas <- d:
			default:
				// Slow consumer: evict the oldest delta rather than stall
				// the read loop. Later deltas supersede earlier ones.
				select {
				case <-s.deltas:
				default:
				}
				select {
				case s.deltas <- d:
				default:
				}
			}
		case "done":
			return
		case "error":
			s.setErr(fmt.Errorf("worker stream error: %s", msg.Error))
			return
		default:
			s.logger.Debug("ignoring stream message", "type", msg.Type)
		}
	}
}
