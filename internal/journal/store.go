package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000

	// Fixed-width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one comfort-mode activation.
type Entry struct {
	ID         string     `json:"id"`
	PageID     string     `json:"page_id"`
	Site       string     `json:"site"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
	VideoCount int        `json:"video_count"`
	Reveals    int        `json:"reveals"`
}

// Active reports whether the activation has not ended yet.
func (e Entry) Active() bool { return e.EndedAt == nil }

// Duration returns the activation length, measured to now when still active.
func (e Entry) Duration(now time.Time) time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return now.Sub(e.StartedAt)
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Store persists activations in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating when needed) the journal database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal: database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := applyPragmas(ctx, db, path == ":memory:"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	page_id     TEXT NOT NULL,
	site        TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	end_reason  TEXT NOT NULL DEFAULT '',
	video_count INTEGER NOT NULL DEFAULT 0,
	reveals     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
`

func applyPragmas(ctx context.Context, db *sql.DB, inMemory bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", (5 * time.Second).Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("journal: apply %q: %w", p, err)
		}
	}
	return nil
}

// Close finalises the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string {
	return s.path
}

// Begin records a new activation. Recording the same ID twice is a no-op.
func (s *Store) Begin(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("journal: begin: empty session id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, page_id, site, started_at, video_count, reveals)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.PageID, e.Site, formatTime(e.StartedAt), e.VideoCount, e.Reveals)
	if err != nil {
		return fmt.Errorf("journal: begin %s: %w", e.ID, err)
	}
	return nil
}

// Finish closes an activation with its end time and reason.
func (s *Store) Finish(ctx context.Context, id string, endedAt time.Time, reason string) error {
	return s.FinishWithReveals(ctx, id, endedAt, reason, 0)
}

// FinishWithReveals is Finish with the session's own reveal count. The stored
// counter never decreases.
func (s *Store) FinishWithReveals(ctx context.Context, id string, endedAt time.Time, reason string, reveals int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?, reveals = MAX(reveals, ?)
		WHERE id = ? AND ended_at IS NULL
	`, formatTime(endedAt), reason, reveals, id)
	if err != nil {
		return fmt.Errorf("journal: finish %s: %w", id, err)
	}
	return expectRow(res, id)
}

// AddReveal increments the control-reveal counter of an open activation.
func (s *Store) AddReveal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET reveals = reveals + 1
		WHERE id = ? AND ended_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("journal: add reveal %s: %w", id, err)
	}
	return expectRow(res, id)
}

// Get returns one activation by ID.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, NotFoundError{Entity: "session", Key: id}
	}
	if err != nil {
		return Entry{}, fmt.Errorf("journal: get %s: %w", id, err)
	}
	return e, nil
}

// List returns the most recent activations first. A non-positive limit uses
// the default.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate: %w", err)
	}
	return out, nil
}

// CloseDangling ends every activation left open by an unclean shutdown.
func (s *Store) CloseDangling(ctx context.Context, at time.Time, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ?
		WHERE ended_at IS NULL
	`, formatTime(at), reason)
	if err != nil {
		return 0, fmt.Errorf("journal: close dangling: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `
	SELECT id, page_id, site, started_at, ended_at, end_reason, video_count, reveals
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e       Entry
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.PageID, &e.Site, &started, &ended, &e.EndReason, &e.VideoCount, &e.Reveals); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Entry{}, fmt.Errorf("parse started_at: %w", err)
	}
	e.StartedAt = t
	if ended.Valid {
		t, err := time.Parse(timeLayout, ended.String)
		if err != nil {
			return Entry{}, fmt.Errorf("parse ended_at: %w", err)
		}
		e.EndedAt = &t
	}
	return e, nil
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: rows affected %s: %w", id, err)
	}
	if n == 0 {
		return NotFoundError{Entity: "open session", Key: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}
