// Package sqlite keeps a journal of harness runs on disk.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome of a recorded run.
const (
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeError = "error"
)

// RunInstance is one agent instance started during a run.
type RunInstance struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Port   int    `json:"port"`
	Status string `json:"status"`
}

// Run is one journal row.
type Run struct {
	ID        int64
	Session   string
	Interface string
	Instances []RunInstance
	Captures  []string
	Outcome   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	interface TEXT NOT NULL,
	instances_json TEXT NOT NULL,
	captures_json TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize runs schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends run and returns its row id.
func (s *Store) Record(run Run) (int64, error) {
	instances, err := json.Marshal(nonNil(run.Instances))
	if err != nil {
		return 0, fmt.Errorf("marshal run instances: %w", err)
	}
	captures, err := json.Marshal(nonNil(run.Captures))
	if err != nil {
		return 0, fmt.Errorf("marshal run captures: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO runs (session, interface, instances_json, captures_json, outcome, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Session,
		run.Interface,
		string(instances),
		string(captures),
		run.Outcome,
		run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("record run %s: %w", run.Session, err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, session, interface, instances_json, captures_json, outcome, error, started_at, duration_ms
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run                 Run
			instances, captures string
			startedAt           string
			durationMS          int64
		)
		if err := rows.Scan(&run.ID, &run.Session, &run.Interface, &instances, &captures,
			&run.Outcome, &run.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(instances), &run.Instances); err != nil {
			return nil, fmt.Errorf("unmarshal run %d instances: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(captures), &run.Captures); err != nil {
			return nil, fmt.Errorf("unmarshal run %d captures: %w", run.ID, err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse run %d start: %w", run.ID, err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}

// openDB opens a SQLite database with standard pragmas (WAL mode, busy timeout).
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
