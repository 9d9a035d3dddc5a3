package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(2*time.Second, log.New(io.Discard, "", 0))
}

func TestDispatchDecodesContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoke" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var in RunState
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		in.Messages = append(in.Messages, Message{
			Role:    "assistant",
			Content: `research complete. {"completed_capability":"research","data":{"n":1}}`,
		})
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	state := RunState{Messages: []Message{{Role: "user", Content: "find sources"}}}
	updated, c, err := testDispatcher().Dispatch(context.Background(), "Researcher", srv.URL, state)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if c == nil || c.CompletedCapability != "research" {
		t.Fatalf("contract = %+v", c)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("expected accumulated messages, got %d", len(updated.Messages))
	}
}

func TestDispatchNoContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in RunState
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.Messages = append(in.Messages, Message{Role: "assistant", Content: "still thinking about it"})
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	state := RunState{Messages: []Message{{Role: "user", Content: "q"}}}
	updated, c, err := testDispatcher().Dispatch(context.Background(), "Researcher", srv.URL, state)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil contract, got %+v", c)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("state should still be replaced, got %d messages", len(updated.Messages))
	}
}

func TestDispatchEmptyResponseKeepsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RunState{})
	}))
	defer srv.Close()

	state := RunState{Messages: []Message{{Role: "user", Content: "q"}}}
	updated, c, err := testDispatcher().Dispatch(context.Background(), "Researcher", srv.URL, state)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil contract")
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("empty worker response must not wipe state")
	}
}

func TestDispatchTransportError(t *testing.T) {
	state := RunState{Messages: []Message{{Role: "user", Content: "q"}}}
	kept, c, err := testDispatcher().Dispatch(context.Background(), "Ghost", "http://127.0.0.1:1", state)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if te.Agent != "Ghost" {
		t.Fatalf("agent = %q", te.Agent)
	}
	if c != nil {
		t.Fatalf("expected nil contract on transport failure")
	}
	if len(kept.Messages) != 1 {
		t.Fatalf("state must survive transport failure")
	}
}

func TestDispatchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	state := RunState{Messages: []Message{{Role: "user", Content: "q"}}}
	_, _, err := testDispatcher().Dispatch(context.Background(), "Flaky", srv.URL, state)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError for 500, got %v", err)
	}
}

func TestRunStateHelpers(t *testing.T) {
	s := RunState{Messages: []Message{
		{Role: "user", Content: "the request"},
		{Role: "assistant", Content: "first"},
		{Role: "assistant", Content: "latest"},
	}}
	if got, _ := s.FirstUser(); got != "the request" {
		t.Fatalf("FirstUser = %q", got)
	}
	if got, _ := s.LastAssistant(); got != "latest" {
		t.Fatalf("LastAssistant = %q", got)
	}

	clone := s.Clone()
	clone.Messages[0].Content = "mutated"
	if s.Messages[0].Content != "the request" {
		t.Fatalf("Clone must not share message backing array")
	}
}
