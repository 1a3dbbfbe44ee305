package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// streamWorker accepts one streaming session: it acknowledges each audio
// chunk with a partial delta and answers finalize with a final delta and a
// done message.
func streamWorker(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stt/stream" {
			t.Errorf("Expected /stt/stream, got %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("sample_rate"); got != "8000" {
			t.Errorf("Expected sample_rate=8000, got %q", got)
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		chunks := 0
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch mt {
			case websocket.BinaryMessage:
				chunks++
				out, _ := json.Marshal(streamMessage{Type: "transcript", Text: "partial", Final: false})
				conn.WriteMessage(websocket.TextMessage, out)
			case websocket.TextMessage:
				var msg streamMessage
				json.Unmarshal(data, &msg)
				if msg.Type == "finalize" {
					out, _ := json.Marshal(streamMessage{Type: "transcript", Text: "hello world", Final: true})
					conn.WriteMessage(websocket.TextMessage, out)
					out, _ = json.Marshal(streamMessage{Type: "done"})
					conn.WriteMessage(websocket.TextMessage, out)
					return
				}
			}
		}
	}))
}

func TestStreamSession(t *testing.T) {
	srv := streamWorker(t)
	defer srv.Close()

	w := NewWhisperWorker(srv.URL)
	s, err := w.OpenStream(context.Background(), 8000)
	if err != nil {
		t.Fatalf("Expected stream to open, got %v", err)
	}
	defer s.Close()

	if err := s.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("Expected audio send to succeed, got %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Expected finalize to succeed, got %v", err)
	}

	var final string
	deadline := time.After(2 * time.Second)
	for final == "" {
		select {
		case d, ok := <-s.Deltas():
			if !ok {
				t.Fatal("Expected a final delta before channel close")
			}
			if d.Final {
				final = d.Text
			}
		case <-deadline:
			t.Fatal("Timed out waiting for final delta")
		}
	}
	if final != "hello world" {
		t.Errorf("Expected final transcript, got %q", final)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for session completion")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Expected clean completion, got %v", err)
	}
}

func TestStreamWorkerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		out, _ := json.Marshal(streamMessage{Type: "error", Error: "decoder died"})
		conn.WriteMessage(websocket.TextMessage, out)
	}))
	defer srv.Close()

	s, err := NewWhisperWorker(srv.URL).OpenStream(context.Background(), 8000)
	if err != nil {
		t.Fatalf("Expected stream to open, got %v", err)
	}
	defer s.Close()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for error completion")
	}
	if s.Err() == nil {
		t.Error("Expected worker error to be surfaced")
	}
}

func TestOpenStreamDialFailure(t *testing.T) {
	w := NewWhisperWorker("http://127.0.0.1:1")
	if _, err := w.OpenStream(context.Background(), 8000); err == nil {
		t.Error("Expected dial failure")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	srv := streamWorker(t)
	defer srv.Close()

	s, err := NewWhisperWorker(srv.URL).OpenStream(context.Background(), 8000)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()
}
