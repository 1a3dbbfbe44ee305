package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, reply func(req chatRequest) chatResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected /api/chat, got %s", r.URL.Path)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(reply(req))
	}))
}

func TestReplyCarriesSystemPromptAndHistory(t *testing.T) {
	var lastReq chatRequest
	n := 0
	srv := chatServer(t, func(req chatRequest) chatResponse {
		lastReq = req
		n++
		return chatResponse{Message: chatMessage{Role: "assistant", Content: fmt.Sprintf("reply %d", n)}}
	})
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3", WithSystemPrompt("You are a phone receptionist."))

	first, err := o.Reply(context.Background(), "hello")
	if err != nil || first != "reply 1" {
		t.Fatalf("Expected first reply, got %q err=%v", first, err)
	}
	if lastReq.Messages[0].Role != "system" {
		t.Error("Expected system prompt first")
	}
	if len(lastReq.Messages) != 2 {
		t.Errorf("Expected system plus user, got %d messages", len(lastReq.Messages))
	}

	second, err := o.Reply(context.Background(), "what are your hours")
	if err != nil || second != "reply 2" {
		t.Fatalf("Expected second reply, got %q err=%v", second, err)
	}
	// system, user, assistant, user
	if len(lastReq.Messages) != 4 {
		t.Errorf("Expected history carried, got %d messages", len(lastReq.Messages))
	}
	if lastReq.Messages[2].Content != "reply 1" {
		t.Errorf("Expected previous reply in history, got %q", lastReq.Messages[2].Content)
	}
}

func TestReplyHistoryIsBounded(t *testing.T) {
	var lastReq chatRequest
	srv := chatServer(t, func(req chatRequest) chatResponse {
		lastReq = req
		return chatResponse{Message: chatMessage{Role: "assistant", Content: "ok"}}
	})
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3")
	for i := 0; i < maxHistoryTurns*2; i++ {
		if _, err := o.Reply(context.Background(), fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	// history window plus the new user message
	if len(lastReq.Messages) > maxHistoryTurns*2+1 {
		t.Errorf("Expected bounded history, got %d messages", len(lastReq.Messages))
	}
}

func TestReplyFailureLeavesHistoryIntact(t *testing.T) {
	fail := false
	var lastReq chatRequest
	srv := chatServer(t, func(req chatRequest) chatResponse {
		lastReq = req
		if fail {
			return chatResponse{Error: "overloaded"}
		}
		return chatResponse{Message: chatMessage{Role: "assistant", Content: "ok"}}
	})
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3")
	o.Reply(context.Background(), "hello")

	fail = true
	if _, err := o.Reply(context.Background(), "second"); err == nil {
		t.Fatal("Expected model error to be surfaced")
	}

	fail = false
	o.Reply(context.Background(), "third")
	// user hello, assistant ok, user third: the failed turn left no trace
	if len(lastReq.Messages) != 3 {
		t.Errorf("Expected failed turn not recorded, got %d messages", len(lastReq.Messages))
	}
}

func TestReplyRejectsEmptyUtterance(t *testing.T) {
	o := NewOllama("http://unused", "llama3")
	if _, err := o.Reply(context.Background(), "  "); err == nil {
		t.Error("Expected error for empty utterance")
	}
}

func TestReset(t *testing.T) {
	var lastReq chatRequest
	srv := chatServer(t, func(req chatRequest) chatResponse {
		lastReq = req
		return chatResponse{Message: chatMessage{Role: "assistant", Content: "ok"}}
	})
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3")
	o.Reply(context.Background(), "hello")
	o.Reset()
	o.Reply(context.Background(), "fresh start")
	if len(lastReq.Messages) != 1 {
		t.Errorf("Expected empty history after reset, got %d messages", len(lastReq.Messages))
	}
}
