package session

import (
	"context"
	"time"
)

// Record is the persisted index entry for a session: metadata only. The
// session's tree lives in the JSON file at StateFilePath (spec.md §6.4)
// and its manager and plugin state in the sibling file named by
// Session.ManagerStatePath; Store never duplicates them into SQL.
type Record struct {
	ID             string
	Team           string
	CreatedAt      time.Time
	LastActivityAt time.Time
	StateFilePath  string
}

// Store indexes session metadata for reconnect lookups and idle reaping,
// mirroring the teacher's narrow Store interface with swappable backends
// (internal/sessions/store.go). Two implementations are provided: memstore
// (the default, mutex-guarded map) and sqlstore (backed by
// modernc.org/sqlite, used when a DSN is configured).
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Touch(ctx context.Context, id string, at time.Time) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ErrNotFound is returned by Get/Touch/Delete when id has no record.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session: record not found" }
