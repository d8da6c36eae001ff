package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/groupchat/internal/groupchat"
	"github.com/haasonsaas/groupchat/internal/inputqueue"
	"github.com/haasonsaas/groupchat/internal/storage"
)

// Session is a long-lived context that may hold multiple reconnecting
// observers and, optionally, a completed run (spec.md §3 "Session",
// GLOSSARY). It owns exactly one groupchat.Manager and fans that
// manager's events out to every attached observer through its
// Broadcaster.
type Session struct {
	ID   string
	Team string

	GroupChat   *groupchat.Manager
	Queue       *inputqueue.Queue
	Broadcaster *Broadcaster

	// StateFilePath is where SaveState/SaveToFile persist this session
	// (spec.md §6.4); empty means persistence is disabled for this session.
	StateFilePath string

	createdAt time.Time

	mu             sync.Mutex
	lastActivityAt time.Time
}

// NewSession wires a freshly built groupchat.Manager, queue, and
// broadcaster into a Session.
func NewSession(id, team string, gcm *groupchat.Manager, queue *inputqueue.Queue, broadcaster *Broadcaster, stateFilePath string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Team:           team,
		GroupChat:      gcm,
		Queue:          queue,
		Broadcaster:    broadcaster,
		StateFilePath:  stateFilePath,
		createdAt:      now,
		lastActivityAt: now,
	}
}

// Touch records activity, resetting the idle clock the reaper checks.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

// LastActivityAt reports when Touch was last called.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// CreatedAt reports when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// IdleSince reports how long the session has gone without activity.
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt())
}

// ManagerStatePath is where SaveManagerState writes the group-chat
// manager's thread/turn/plugin-state blob, kept as a sibling of the
// tree's own JSON file rather than folded into it: the tree and the
// manager state are persisted independently (internal/tree.Tree.SaveToFile
// for the former, groupchat.Manager.SaveState for the latter).
func (s *Session) ManagerStatePath() string {
	if s.StateFilePath == "" {
		return ""
	}
	return s.StateFilePath + ".manager.json"
}

// SaveManagerState persists the group-chat manager's own state (thread,
// current turn, plugin blobs) to ManagerStatePath. A no-op if the session
// has no configured StateFilePath.
func (s *Session) SaveManagerState(ctx context.Context) error {
	path := s.ManagerStatePath()
	if path == "" {
		return nil
	}
	data, err := s.GroupChat.SaveState(ctx)
	if err != nil {
		return fmt.Errorf("saving manager state for session %s: %w", s.ID, err)
	}
	if err := storage.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manager state for session %s: %w", s.ID, err)
	}
	return nil
}
