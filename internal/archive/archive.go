// Package archive keeps a local history of generated daily logs: every
// completed run is recorded with its rendered block and the events
// behind it, so past output stays inspectable after the note itself
// has been edited.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/dailylog/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Run is one recorded generation.
type Run struct {
	ID         string
	DateKey    string
	CreatedAt  time.Time
	EventCount int
	Markdown   string
	Events     []event.NormalizedEvent
}

// Store records and lists generation runs.
type Store interface {
	RecordRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, dateKey string) (*Run, error)
	Close() error
}

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB

	insertRun   *sql.Stmt
	insertEvent *sql.Stmt
}

// Open opens (creating if needed) the archive database at path and
// applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an already-opened database, applying the schema
// and preparing statements.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	var err error
	s.insertRun, err = db.Prepare(`
		INSERT INTO runs (id, date_key, created_at, event_count, markdown)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert run: %w", err)
	}
	s.insertEvent, err = db.Prepare(`
		INSERT INTO run_events (run_id, seq, source, ts, topic, summary, raw_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert event: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.insertRun != nil {
		s.insertRun.Close()
	}
	if s.insertEvent != nil {
		s.insertEvent.Close()
	}
	return s.db.Close()
}

// RecordRun stores a run and its events in one transaction. The run ID
// is generated when empty.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("archive: run is nil")
	}
	if run.DateKey == "" {
		return fmt.Errorf("archive: dateKey is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.EventCount = len(run.Events)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.StmtContext(ctx, s.insertRun).ExecContext(ctx,
		run.ID, run.DateKey, run.CreatedAt.Format(time.RFC3339), run.EventCount, run.Markdown)
	if err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	for i, ev := range run.Events {
		_, err = tx.StmtContext(ctx, s.insertEvent).ExecContext(ctx,
			run.ID, i, string(ev.Source), ev.Timestamp, ev.Topic, ev.OneLineSummary, ev.RawRef)
		if err != nil {
			return fmt.Errorf("archive: insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first, without their
// event rows.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date_key, created_at, event_count, markdown
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the most recent run for dateKey with its events, or
// nil when none exists.
func (s *SQLiteStore) GetRun(ctx context.Context, dateKey string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, date_key, created_at, event_count, markdown
		FROM runs WHERE date_key = ? ORDER BY created_at DESC LIMIT 1
	`, dateKey)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, ts, topic, summary, raw_ref
		FROM run_events WHERE run_id = ? ORDER BY seq
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("archive: load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev event.NormalizedEvent
		var source string
		if err := rows.Scan(&source, &ev.Timestamp, &ev.Topic, &ev.OneLineSummary, &ev.RawRef); err != nil {
			return nil, fmt.Errorf("archive: scan event: %w", err)
		}
		ev.Source = event.Source(source)
		run.Events = append(run.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var createdAt string
	if err := row.Scan(&run.ID, &run.DateKey, &createdAt, &run.EventCount, &run.Markdown); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("archive: parse created_at %q: %w", createdAt, err)
	}
	run.CreatedAt = t
	return run, nil
}
