// Package reaper implements the idle-session reaper named in spec.md
// §4.7: a periodic sweep, driven by robfig/cron, that persists and evicts
// sessions whose last activity exceeds a configured TTL.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/groupchat/internal/session"
)

// maxConcurrentReaps bounds how many sessions a single sweep persists at
// once; each reap does at least two file writes, so an unbounded fan-out
// would let one sweep of a few thousand idle sessions saturate disk I/O.
const maxConcurrentReaps = 8

// Config configures the reaper.
type Config struct {
	// Schedule is a standard five-field cron expression; robfig/cron's
	// default parser (minute, hour, day-of-month, month, day-of-week).
	Schedule string
	TTL      time.Duration
	// StateDir is where a reaped session's final tree JSON is written,
	// named "<session_id>.json" (spec.md §6.4), if the session did not
	// already have a StateFilePath set. The file carries no snapshots; the
	// manager state goes to the sibling Session.ManagerStatePath.
	StateDir string
}

// Reaper periodically scans the session manager's live sessions for idle
// ones, persists
// a final snapshot, and evicts them from the in-memory manager.
type Reaper struct {
	cfg     Config
	manager *session.Manager
	cron    *cron.Cron
	logger  *slog.Logger
}

// New returns a Reaper bound to manager. Call Start to begin the cron
// schedule; call Stop to end it.
func New(cfg Config, manager *session.Manager, logger *slog.Logger) (*Reaper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "*/5 * * * *"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
		logger:  logger.With("component", "reaper"),
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.sweep); err != nil {
		return nil, fmt.Errorf("reaper: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start begins running the cron schedule in the background.
func (r *Reaper) Start() { r.cron.Start() }

// Stop ends the cron schedule and waits for any in-progress sweep to
// finish.
func (r *Reaper) Stop() { <-r.cron.Stop().Done() }

// sweep is the cron job body: scan every live session, reap the idle ones.
// Persisting each reaped session's state is I/O-bound and independent
// across sessions, so a sweep with many idle sessions fans the persist
// step out across a bounded errgroup instead of reaping one at a time.
func (r *Reaper) sweep() {
	ctx := context.Background()
	now := time.Now()

	var idle []*session.Session
	for _, s := range r.manager.List() {
		if s.IdleSince(now) >= r.cfg.TTL {
			idle = append(idle, s)
		}
	}
	if len(idle) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReaps)
	for _, s := range idle {
		s := s
		g.Go(func() error {
			if err := r.reapOne(gctx, s); err != nil {
				r.logger.Error("reaping session", "session", s.ID, "error", err)
				return nil
			}
			r.manager.Evict(s.ID)
			r.logger.Info("reaped idle session", "session", s.ID, "idle_for", now.Sub(s.LastActivityAt()))
			return nil
		})
	}
	_ = g.Wait()
}

// reapOne persists a session's two independent state artifacts before
// eviction: the conversation tree (internal/tree.Tree.SaveToFile) and the
// group-chat manager's own thread/turn/plugin-state blob
// (groupchat.Manager.SaveState, via Session.SaveManagerState). This
// matches spec.md §4.7's "persists a final tree snapshot... evicts them
// from the in-memory manager".
func (r *Reaper) reapOne(ctx context.Context, s *session.Session) error {
	path := s.StateFilePath
	if path == "" {
		path = filepath.Join(r.cfg.StateDir, s.ID+".json")
		s.StateFilePath = path
	}
	// nil: this Session has no plugin snapshot store of its own to pass
	// through (state-context plugins persist their snapshots as part of
	// the manager's SaveState blob, not the tree's). Tree.SaveToFile omits
	// the snapshots key entirely when given nil rather than writing an
	// empty one.
	if err := s.GroupChat.Tree().SaveToFile(path, nil); err != nil {
		return fmt.Errorf("saving tree: %w", err)
	}
	if err := s.SaveManagerState(ctx); err != nil {
		return fmt.Errorf("saving manager state: %w", err)
	}
	if r.manager.Store() != nil {
		if err := r.manager.Store().Touch(ctx, s.ID, s.LastActivityAt()); err != nil && err != session.ErrNotFound {
			return fmt.Errorf("touching session record: %w", err)
		}
	}
	return nil
}
