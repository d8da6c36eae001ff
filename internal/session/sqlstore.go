package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, same as the teacher's internal/channels/imessage/adapter.go
)

// SQLStore is the SQLite-backed session index (spec.md §4.7, §6.4): "an
// optional SQLite session index... session metadata and last-activity
// only; tree/plugin-state bodies stay in the JSON file". Used in place of
// MemStore when a DSN is configured, so session metadata survives a
// process restart even though the live groupchat.Manager state does not.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (creating if necessary) a SQLite database at dsn and
// runs the store's schema migration.
func NewSQLStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent session creation.

	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	team             TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	last_activity_at TEXT NOT NULL,
	state_file_path  TEXT NOT NULL DEFAULT ''
);`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrating session store schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, team, created_at, last_activity_at, state_file_path) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET team=excluded.team, last_activity_at=excluded.last_activity_at`,
		rec.ID, rec.Team, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.LastActivityAt.UTC().Format(time.RFC3339Nano), rec.StateFilePath,
	)
	if err != nil {
		return fmt.Errorf("creating session record %q: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_activity_at = ? WHERE id = ?`, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("touching session record %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching session record %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, team, created_at, last_activity_at, state_file_path FROM sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session record %q: %w", id, err)
	}
	return rec, nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, team, created_at, last_activity_at, state_file_path FROM sessions ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing session records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session record %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session record %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// rowScanner abstracts over *sql.Row and *sql.Rows, both of which expose
// Scan with the same signature.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var createdAt, lastActivityAt string
	if err := row.Scan(&rec.ID, &rec.Team, &createdAt, &lastActivityAt, &rec.StateFilePath); err != nil {
		return nil, err
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.LastActivityAt, err = time.Parse(time.RFC3339Nano, lastActivityAt); err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	return &rec, nil
}
