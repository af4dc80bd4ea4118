package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/stream"
)

func sseHandler(t *testing.T, wantPath string, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("unexpected accept header %q", accept)
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

func drain(t *testing.T, dec *stream.Decoder) []*stream.Event {
	t.Helper()
	defer dec.Close()
	var events []*stream.Event
	for dec.Next() {
		events = append(events, dec.Current())
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	return events
}

func TestGenerateConstrained(t *testing.T) {
	frames := []string{
		`{"type": "status", "message": "Starting constrained generation..."}`,
		`{"type": "token", "text": "(lambda", "step": 1}`,
		`{"type": "token", "text": " x", "step": 2}`,
		`{"type": "done", "reason": "complete", "is_complete": true}`,
	}
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		sseHandler(t, "/api/generate-constrained", frames)(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL)
	dec, err := c.GenerateConstrained(context.Background(), ConstrainedRequest{
		Spec:          "term ::= ...",
		Prompt:        "identity function",
		Model:         "gpt2",
		MaxTokens:     50,
		GrammarTokens: 30,
	})
	if err != nil {
		t.Fatalf("GenerateConstrained failed: %v", err)
	}

	events := drain(t, dec)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != stream.EventStatus {
		t.Errorf("expected leading status event, got %q", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != stream.EventDone || last.Reason != stream.ReasonComplete {
		t.Errorf("unexpected terminal event %+v", last)
	}
	if last.IsComplete == nil || !*last.IsComplete {
		t.Error("expected is_complete true")
	}

	// mask_whitespace is always serialised so the server sees an explicit
	// false rather than its own default.
	if _, ok := gotBody["mask_whitespace"]; !ok {
		t.Error("expected mask_whitespace in request body")
	}
	if gotBody["grammar_tokens"] != float64(30) {
		t.Errorf("unexpected grammar_tokens %v", gotBody["grammar_tokens"])
	}
}

func TestGenerateUnconstrained(t *testing.T) {
	full := "the identity function is \\x.x"
	frames := []string{
		`{"type": "status", "message": "Starting unconstrained generation..."}`,
		`{"type": "token", "text": "the identity"}`,
		fmt.Sprintf(`{"type": "done", "reason": "max_tokens", "full_text": %q}`, full),
	}
	srv := httptest.NewServer(sseHandler(t, "/api/generate-unconstrained", frames))
	defer srv.Close()

	c := New(srv.URL)
	dec, err := c.GenerateUnconstrained(context.Background(), UnconstrainedRequest{
		Prompt:      "identity function",
		Model:       "gpt2",
		MaxTokens:   50,
		TopK:        50,
		Temperature: 1.0,
	})
	if err != nil {
		t.Fatalf("GenerateUnconstrained failed: %v", err)
	}

	events := drain(t, dec)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	last := events[2]
	if last.Reason != stream.ReasonMaxTokens {
		t.Errorf("unexpected reason %q", last.Reason)
	}
	if last.FullText == nil || *last.FullText != full {
		t.Errorf("expected full_text snapshot, got %+v", last)
	}
}

func TestGenerateStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model failed to load"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	dec, err := c.GenerateConstrained(context.Background(), ConstrainedRequest{Spec: "x ::= \"x\""})
	if err == nil {
		dec.Close()
		t.Fatal("expected error")
	}
	if !errors.Is(err, gferrors.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if dec != nil {
		t.Error("expected nil decoder on open failure")
	}
}

func TestGenerateStreamNoClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"type": "status", "message": "working"}`)
		flusher.Flush()
		<-release
		fmt.Fprintf(w, "data: %s\n\n", `{"type": "done", "reason": "max_tokens", "full_text": ""}`)
	}))
	defer srv.Close()
	defer close(release)

	// An aggressively short client timeout must not apply to streams.
	c := New(srv.URL, WithTimeout(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dec, err := c.GenerateUnconstrained(ctx, UnconstrainedRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateUnconstrained failed: %v", err)
	}
	defer dec.Close()

	if !dec.Next() {
		t.Fatalf("expected first event, got err %v", dec.Err())
	}
	time.Sleep(30 * time.Millisecond)

	// Cancelling the context is what ends the stream, not the timeout.
	cancel()
	for dec.Next() {
	}
	if !errors.Is(dec.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", dec.Err())
	}
}
