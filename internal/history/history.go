// Package history implements the run catalog: a queryable record of
// every scheduler run's lifecycle (start/stop tags, stop reason, config
// snapshot), backed by a real database. This is deliberately separate
// from internal/recorder's framed binary log — the recording is the
// determinism-critical replay artifact and must not depend on a database
// being reachable; the catalog is convenience metadata for `reactor
// history` and is allowed to be just another table.
//
// Grounded on the teacher's internal/store.Store (store/store.go): same
// Open/Close shape, same WAL-mode pragmas, same "idempotent schema
// exec + user_version migration" pattern. The driver differs —
// modernc.org/sqlite instead of mattn/go-sqlite3 — because it is
// cgo-free, which matters more here than in the teacher's CLI tool since
// a scheduler embedder should not need a C toolchain to record run
// history. daviddao-clockmail and Mindburn-Labs-helm both reach for the
// same modernc.org/sqlite driver for the same reason.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the run catalog's database handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite-backed run catalog at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("history: exec %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("history: apply schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("history: read user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("history: set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Run is one row of the catalog.
type Run struct {
	ID             int64
	StartedAt      time.Time
	EndedAt        *time.Time
	StopReason     string
	FatalError     string
	StartTagOffset int64
	EndTagOffset   *int64
	ConfigSnapshot map[string]any
	RecordPath     string
}

// BeginRun inserts a new row for a run that is about to start and
// returns its id.
func (s *Store) BeginRun(ctx context.Context, startTagOffset int64, config map[string]any, recordPath string) (int64, error) {
	snapshot, err := json.Marshal(config)
	if err != nil {
		return 0, fmt.Errorf("history: marshal config snapshot: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, start_tag_ns, config_snapshot, record_path) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), startTagOffset, string(snapshot), recordPath,
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	return res.LastInsertId()
}

// EndRun records the outcome of a completed run.
func (s *Store) EndRun(ctx context.Context, id int64, endTagOffset int64, stopReason, fatalError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, end_tag_ns = ?, stop_reason = ?, fatal_error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), endTagOffset, stopReason, fatalError, id,
	)
	if err != nil {
		return fmt.Errorf("history: update run %d: %w", id, err)
	}
	return nil
}

// Recent returns the most recent limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, stop_reason, fatal_error, start_tag_ns, end_tag_ns, config_snapshot, record_path
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			endedAt    sql.NullString
			stopReason sql.NullString
			fatalErr   sql.NullString
			endTag     sql.NullInt64
			snapshot   string
			recordPath sql.NullString
		)
		if err := rows.Scan(&r.ID, &startedAt, &endedAt, &stopReason, &fatalErr, &r.StartTagOffset, &endTag, &snapshot, &recordPath); err != nil {
			return nil, fmt.Errorf("history: scan run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if endedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, endedAt.String)
			r.EndedAt = &t
		}
		r.StopReason = stopReason.String
		r.FatalError = fatalErr.String
		if endTag.Valid {
			v := endTag.Int64
			r.EndTagOffset = &v
		}
		r.RecordPath = recordPath.String
		_ = json.Unmarshal([]byte(snapshot), &r.ConfigSnapshot)
		out = append(out, r)
	}
	return out, rows.Err()
}
