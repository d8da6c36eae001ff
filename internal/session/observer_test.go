package session

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/groupchat/internal/events"
)

func TestObserverQueueDropsOldestChunkUnderBackpressure(t *testing.T) {
	q := newObserverQueue(2, nil)
	now := time.Now()

	q.push(events.NewStreamingChunk("agent", "chunk-1", "msg-1", now))
	q.push(events.NewStreamingChunk("agent", "chunk-2", "msg-1", now))
	// Queue is now full (capacity 2). A critical ChatMessage should evict
	// the oldest chunk rather than being dropped itself.
	q.push(events.NewChatMessage("agent", "msg-1", "final text", now))

	ctx := context.Background()
	first, ok := q.next(ctx)
	if !ok {
		t.Fatalf("expected an event")
	}
	chunk, ok := first.(events.StreamingChunk)
	if !ok || chunk.Content != "chunk-2" {
		t.Fatalf("expected chunk-2 to survive eviction, got %#v", first)
	}

	second, ok := q.next(ctx)
	if !ok {
		t.Fatalf("expected a second event")
	}
	if _, ok := second.(events.ChatMessage); !ok {
		t.Fatalf("expected the ChatMessage to have been enqueued, got %#v", second)
	}
}

func TestBroadcasterFansOutToEveryObserver(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Attach("obs-1", 8)
	b.Attach("obs-2", 8)

	msg := events.NewChatMessage("agent", "id-1", "hello", time.Now())
	b.Emit(msg)

	ctx := context.Background()
	for _, id := range []string{"obs-1", "obs-2"} {
		ev, ok := b.Next(ctx, id)
		if !ok {
			t.Fatalf("observer %s: expected an event", id)
		}
		if cm, ok := ev.(events.ChatMessage); !ok || cm.Content != "hello" {
			t.Fatalf("observer %s: unexpected event %#v", id, ev)
		}
	}
}

func TestBroadcasterDetachClosesQueue(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Attach("obs-1", 8)
	b.Detach("obs-1")

	ctx := context.Background()
	if _, ok := b.Next(ctx, "obs-1"); ok {
		t.Fatalf("expected Next to report the observer is gone after Detach")
	}
}
