package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/groupchat/internal/metrics"
)

// Builder constructs a brand-new Session for id the first time
// Manager.GetOrCreate sees it. Supplied by cmd/groupchat, which closes
// over the loaded config.Team to wire up containers, plugins, and the
// groupchat.Manager.
type Builder func(ctx context.Context, id string) (*Session, error)

// Manager owns sessions keyed by id and binds observer connections to a
// session (spec.md §4.7 "Session Manager"). Exactly one Manager exists
// per process; every gateway connection goes through it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewManager returns an empty Manager. store indexes session metadata for
// reconnect and idle reaping; it may be a memstore or a sqlstore.
func NewManager(store Store, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		metrics:  m,
		logger:   logger.With("component", "session_manager"),
	}
}

// GetOrCreate returns the existing session for id, or builds a new one via
// build and registers it (spec.md §4.7 "GetOrCreate returns an existing
// session (for tab re-attach) or builds a fresh one"). The returned bool
// reports whether build was invoked.
func (m *Manager) GetOrCreate(ctx context.Context, id string, build Builder) (*Session, bool, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, false, nil
	}
	m.mu.Unlock()

	s, err := build(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("building session %q: %w", id, err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		// Lost a race with a concurrent GetOrCreate; discard our build and
		// use the session that won.
		m.mu.Unlock()
		return existing, false, nil
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(count))
	}
	if m.store != nil {
		if err := m.store.Create(ctx, &Record{ID: id, Team: s.Team, CreatedAt: s.CreatedAt(), LastActivityAt: s.CreatedAt(), StateFilePath: s.StateFilePath}); err != nil {
			m.logger.Error("recording session in store", "session", id, "error", err)
		}
	}
	m.logger.Info("session created", "session", id, "team", s.Team)
	return s, true, nil
}

// Get returns the session for id, if one is currently held.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns every currently held session.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Evict removes id from the in-memory map (used by the reaper after
// persisting final state). The Store record, if any, is left in place for
// audit (spec.md §4.7 "the SQLite record, if any, is retained for audit").
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.GroupChat.Close()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(count))
	}
	m.logger.Info("session evicted", "session", id)
}

// Store returns the manager's backing index, or nil if none was
// configured.
func (m *Manager) Store() Store { return m.store }
