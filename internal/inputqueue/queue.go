// Package inputqueue correlates out-of-band "ask the human" requests that a
// user-proxy agent issues mid-run with the response an observer eventually
// sends back over the gateway.
package inputqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Emitter is the one thing Queue needs from its caller: somewhere to publish
// the UserInputRequested event so observers learn a prompt is pending. The
// manager satisfies this with whatever broadcasts to session observers.
type Emitter interface {
	EmitUserInputRequested(requestID, agentName, prompt string)
}

type pending struct {
	resultCh chan string
	owner    string // observer connection id that the request is routed to, if any
}

// Queue is a correlation table from request id to an in-flight promise. It
// is safe for concurrent use: Request is typically called from an agent's
// own goroutine while Provide and CancelAll are called from the gateway's
// goroutine handling observer frames.
type Queue struct {
	mu      sync.Mutex
	pending map[string]*pending
	emitter Emitter
}

// New returns an empty Queue that publishes UserInputRequested events
// through emitter.
func New(emitter Emitter) *Queue {
	return &Queue{pending: make(map[string]*pending), emitter: emitter}
}

// ErrCanceled is returned by Request when CancelAll rejects its promise
// before a response arrives.
var ErrCanceled = fmt.Errorf("input request canceled")

// Request emits UserInputRequested for prompt and blocks until a matching
// Provide call arrives, ctx is canceled, or CancelAll is invoked. owner, if
// non-empty, scopes the request to one observer connection so a disconnect
// only cancels requests that connection owns.
func (q *Queue) Request(ctx context.Context, agentName, prompt, owner string) (string, error) {
	requestID := uuid.NewString()
	p := &pending{resultCh: make(chan string, 1), owner: owner}

	q.mu.Lock()
	q.pending[requestID] = p
	q.mu.Unlock()

	q.emitter.EmitUserInputRequested(requestID, agentName, prompt)

	select {
	case content, ok := <-p.resultCh:
		if !ok {
			return "", ErrCanceled
		}
		return content, nil
	case <-ctx.Done():
		q.drop(requestID)
		return "", ctx.Err()
	}
}

// Provide fulfils the promise for requestID with content. It returns false
// if requestID is unknown (already answered, canceled, or never issued),
// matching the spec's "idempotent-safe" contract.
func (q *Queue) Provide(requestID, content string) bool {
	q.mu.Lock()
	p, ok := q.pending[requestID]
	if ok {
		delete(q.pending, requestID)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}
	p.resultCh <- content
	return true
}

// CancelAll rejects every outstanding promise, used on interrupt. When
// owner is non-empty only promises requested with that owner are rejected
// (a single observer's disconnect); an empty owner rejects everything.
func (q *Queue) CancelAll(owner string) {
	q.mu.Lock()
	var toClose []*pending
	for id, p := range q.pending {
		if owner != "" && p.owner != owner {
			continue
		}
		toClose = append(toClose, p)
		delete(q.pending, id)
	}
	q.mu.Unlock()

	for _, p := range toClose {
		close(p.resultCh)
	}
}

func (q *Queue) drop(requestID string) {
	q.mu.Lock()
	delete(q.pending, requestID)
	q.mu.Unlock()
}
