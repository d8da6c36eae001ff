// Package session implements the Session Manager component (spec.md
// §4.7, §3 "Session"): the hash map of session id to Session, the
// bounded per-observer event queue with drop-oldest-chunk backpressure
// (spec.md §5 "Backpressure"), and the pluggable Store used to index
// sessions for reconnect and idle reaping.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
)

// DefaultQueueCapacity bounds one observer's outbound queue. Chosen to
// absorb a burst of StreamingChunks between two ChatMessages without
// unbounded growth; grounded on the teacher's debounce buffer sizing
// philosophy (internal/gateway/debounce.go) of bounding per-connection
// buffering rather than per-process.
const DefaultQueueCapacity = 256

// observerQueue is one observer connection's bounded outbound event
// queue. It is a plain mutex-guarded slice rather than a buffered channel
// because the drop-oldest-streaming-chunk-first backpressure policy
// (spec.md §5) needs to inspect and remove an arbitrary queued element,
// not just refuse new ones.
type observerQueue struct {
	mu       sync.Mutex
	items    []events.Event
	capacity int
	signal   chan struct{}
	closed   bool

	onDropChunk func()
}

func newObserverQueue(capacity int, onDropChunk func()) *observerQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &observerQueue{
		capacity:    capacity,
		signal:      make(chan struct{}, 1),
		onDropChunk: onDropChunk,
	}
}

// push enqueues ev, evicting the oldest StreamingChunk already queued if
// the queue is at capacity. If no chunk is queued to evict, the oldest
// entry of any kind is dropped instead, preserving the "manager never
// blocks on an observer" guarantee at the cost of an older, less
// time-sensitive event.
func (q *observerQueue) push(ev events.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.items) >= q.capacity {
		if idx := indexOfOldestChunk(q.items); idx >= 0 {
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			if q.onDropChunk != nil {
				q.onDropChunk()
			}
		} else {
			q.items = q.items[1:]
		}
	}
	q.items = append(q.items, ev)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func indexOfOldestChunk(items []events.Event) int {
	for i, ev := range items {
		if _, ok := ev.(events.StreamingChunk); ok {
			return i
		}
	}
	return -1
}

// next blocks until an event is available, ctx is canceled, or the queue
// is closed (in which case ok is false).
func (q *observerQueue) next(ctx context.Context) (events.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *observerQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Broadcaster fans session events out to every attached observer queue.
// It implements groupchat.Emitter, so a Session's Broadcaster is wired
// directly into the groupchat.Manager's Config.Emitter field.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[string]*observerQueue

	onDropChunk func()
}

// NewBroadcaster returns an empty Broadcaster. onDropChunk, if non-nil, is
// called once per StreamingChunk evicted under backpressure (wired to
// metrics.Metrics.GatewayDroppedChunks by the caller).
func NewBroadcaster(onDropChunk func()) *Broadcaster {
	return &Broadcaster{observers: make(map[string]*observerQueue), onDropChunk: onDropChunk}
}

// Emit fans ev out to every attached observer's queue (spec.md §4.7
// "Broadcast(session_id, event)"). Satisfies groupchat.Emitter.
func (b *Broadcaster) Emit(ev events.Event) {
	b.mu.Lock()
	queues := make([]*observerQueue, 0, len(b.observers))
	for _, q := range b.observers {
		queues = append(queues, q)
	}
	b.mu.Unlock()
	for _, q := range queues {
		q.push(ev)
	}
}

// EmitUserInputRequested satisfies inputqueue.Emitter by wrapping the
// request into a UserInputRequested event and broadcasting it.
func (b *Broadcaster) EmitUserInputRequested(requestID, agentName, prompt string) {
	b.Emit(events.NewUserInputRequested(agentName, requestID, prompt, time.Now()))
}

// Attach registers a new observer connection and returns the queue the
// gateway's read loop drains. observerID must be unique per connection.
func (b *Broadcaster) Attach(observerID string, capacity int) *observerQueue {
	q := newObserverQueue(capacity, b.onDropChunk)
	b.mu.Lock()
	b.observers[observerID] = q
	b.mu.Unlock()
	return q
}

// Detach removes and closes an observer's queue, typically on disconnect.
func (b *Broadcaster) Detach(observerID string) {
	b.mu.Lock()
	q, ok := b.observers[observerID]
	delete(b.observers, observerID)
	b.mu.Unlock()
	if ok {
		q.close()
	}
}

// ObserverCount reports how many observers are currently attached, used
// to populate metrics.Metrics.ObserversConnected.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Next blocks on observerID's queue until an event is ready, ctx is
// canceled, or the observer is detached.
func (b *Broadcaster) Next(ctx context.Context, observerID string) (events.Event, bool) {
	b.mu.Lock()
	q, ok := b.observers[observerID]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	return q.next(ctx)
}
