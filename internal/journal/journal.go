// Package journal records migration runs and their progress events in
// an embedded SQLite database.
//
// The journal is telemetry for the stats command. It is never consulted
// to decide where a migration resumes; commit messages are the only
// source of truth for that.
//
// Schema:
//   - runs: one row per invocation, keyed by a random UUID
//   - events: one row per progress marker (revision, init, gc, tags,
//     finalize) with the elapsed time of that unit of work
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	ConfigFile string
	Branches   string

	Commits int
	Tags    int
	Error   string

	// Revisions and Elapsed aggregate the run's revision events
	Revisions int
	Elapsed   time.Duration
}

// Event is one progress marker of a run.
type Event struct {
	Marker     int64
	Elapsed    time.Duration
	RecordedAt time.Time
}

// DB is an open journal.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal at path and ensures its schema.
//
// The caller must call Close when done.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	// The journal has a single writer
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint journal WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	db.conn = nil
	return nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		config_file TEXT NOT NULL DEFAULT '',
		branches TEXT NOT NULL DEFAULT '',
		commits INTEGER NOT NULL DEFAULT 0,
		tags INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		marker INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// StartRun records a new running run and returns its id.
func (db *DB) StartRun(ctx context.Context, configFile, branches string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, config_file, branches) VALUES (?, ?, ?, ?, ?)`,
		id, formatTime(time.Now()), StatusRunning, configFile, branches)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// Record appends a progress event to a run.
func (db *DB) Record(ctx context.Context, runID string, marker int64, elapsed time.Duration) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (run_id, marker, elapsed_ms, recorded_at) VALUES (?, ?, ?, ?)`,
		runID, marker, elapsed.Milliseconds(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record event %d: %w", marker, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(ctx context.Context, runID, status string, commits, tags int, runErr error) error {
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, commits = ?, tags = ?, error = ? WHERE id = ?`,
		formatTime(time.Now()), status, commits, tags, message, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Runs lists the most recent runs first, at most limit of them (zero
// or less lists all).
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT r.id, r.started_at, r.finished_at, r.status, r.config_file, r.branches,
	       r.commits, r.tags, r.error,
	       COUNT(e.id), COALESCE(SUM(e.elapsed_ms), 0)
	FROM runs r
	LEFT JOIN events e ON e.run_id = r.id AND e.marker > 0
	GROUP BY r.id
	ORDER BY r.started_at DESC, r.rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			finishedAt sql.NullString
			elapsedMS  int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &r.ConfigFile, &r.Branches,
			&r.Commits, &r.Tags, &r.Error, &r.Revisions, &elapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			r.FinishedAt = parseTime(finishedAt.String)
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events lists the events of a run in the order they were recorded.
func (db *DB) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT marker, elapsed_ms, recorded_at FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			elapsedMS  int64
			recordedAt string
		)
		if err := rows.Scan(&e.Marker, &elapsedMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.RecordedAt = parseTime(recordedAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
