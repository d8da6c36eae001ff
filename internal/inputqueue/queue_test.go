package inputqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingEmitter struct {
	mu     sync.Mutex
	prompt string
	agent  string
}

func (r *recordingEmitter) EmitUserInputRequested(requestID, agentName, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent = agentName
	r.prompt = prompt
}

func TestRequestProvideRoundTrip(t *testing.T) {
	emitter := &recordingEmitter{}
	q := New(emitter)

	var requestID string
	done := make(chan struct{})
	go func() {
		defer close(done)
		content, err := q.Request(context.Background(), "user_proxy", "what next?", "")
		if err != nil {
			t.Errorf("Request: %v", err)
			return
		}
		if content != "go ahead" {
			t.Errorf("got %q, want %q", content, "go ahead")
		}
	}()

	// Poll until the request has been recorded; Provide needs the id, which
	// Request never returns (it returns the answer), so recover it from the
	// queue.
	var id string
	for i := 0; i < 100; i++ {
		q.mu.Lock()
		for k := range q.pending {
			id = k
		}
		n := len(q.pending)
		q.mu.Unlock()
		if n > 0 {
			requestID = id
			break
		}
		time.Sleep(time.Millisecond)
	}
	if requestID == "" {
		t.Fatalf("request never registered")
	}

	if ok := q.Provide(requestID, "go ahead"); !ok {
		t.Fatalf("Provide returned false for a known request id")
	}
	<-done
}

func TestProvideUnknownRequestReturnsFalse(t *testing.T) {
	q := New(&recordingEmitter{})
	if q.Provide("nonexistent", "hi") {
		t.Fatalf("expected false for unknown request id")
	}
}

func TestCancelAllRejectsOutstanding(t *testing.T) {
	q := New(&recordingEmitter{})
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Request(context.Background(), "user_proxy", "prompt", "")
		errCh <- err
	}()

	for len(q.pending) == 0 {
		time.Sleep(time.Millisecond)
	}
	q.CancelAll("")

	err := <-errCh
	if err != ErrCanceled {
		t.Fatalf("got %v, want ErrCanceled", err)
	}
}

func TestCancelAllScopedToOwner(t *testing.T) {
	q := New(&recordingEmitter{})
	errA := make(chan error, 1)
	errB := make(chan error, 1)

	go func() {
		_, err := q.Request(context.Background(), "agent", "a", "conn-a")
		errA <- err
	}()
	go func() {
		_, err := q.Request(context.Background(), "agent", "b", "conn-b")
		errB <- err
	}()

	for len(q.pending) < 2 {
		time.Sleep(time.Millisecond)
	}
	q.CancelAll("conn-a")

	if err := <-errA; err != ErrCanceled {
		t.Fatalf("conn-a request: got %v, want ErrCanceled", err)
	}

	select {
	case err := <-errB:
		t.Fatalf("conn-b request should still be pending, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	q.CancelAll("")
	if err := <-errB; err != ErrCanceled {
		t.Fatalf("conn-b request: got %v, want ErrCanceled", err)
	}
}

func TestRequestCanceledByContext(t *testing.T) {
	q := New(&recordingEmitter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Request(ctx, "agent", "prompt", "")
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
