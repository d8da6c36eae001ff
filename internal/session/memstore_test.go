package session

import (
	"context"
	"testing"
	"time"
)

func TestMemStoreCreateGetTouchDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	now := time.Now()
	if err := store.Create(ctx, &Record{ID: "s1", Team: "committee-review", CreatedAt: now, LastActivityAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Team != "committee-review" {
		t.Fatalf("unexpected team: %q", rec.Team)
	}

	later := now.Add(time.Minute)
	if err := store.Touch(ctx, "s1", later); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	rec, _ = store.Get(ctx, "s1")
	if !rec.LastActivityAt.Equal(later) {
		t.Fatalf("expected last_activity_at %v, got %v", later, rec.LastActivityAt)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStoreTouchUnknown(t *testing.T) {
	store := NewMemStore()
	if err := store.Touch(context.Background(), "missing", time.Now()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, &Record{ID: id, Team: "t", CreatedAt: now, LastActivityAt: now}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	recs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
}
