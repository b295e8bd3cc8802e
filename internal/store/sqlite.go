package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// SQLite keeps runs, their leaf results and every phase record.
type SQLite struct {
	db *sql.DB
}

type RunSummary struct {
	RunID      string          `json:"run_id"`
	Intent     string          `json:"intent"`
	TargetID   string          `json:"target_id"`
	Status     model.RunStatus `json:"status"`
	DryRun     bool            `json:"dry_run"`
	Total      int             `json:"total"`
	Approved   int             `json:"approved"`
	Blocked    int             `json:"blocked"`
	DurationMs int64           `json:"duration_ms"`
	RecordedAt string          `json:"recorded_at"`
}

type EventRow struct {
	ID        string      `json:"id"`
	EventID   string      `json:"event_id"`
	RunID     string      `json:"run_id"`
	Kind      events.Kind `json:"kind"`
	From      model.Phase `json:"from,omitempty"`
	Phase     model.Phase `json:"phase,omitempty"`
	CreatedAt string      `json:"created_at"`
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			intent      TEXT NOT NULL,
			target_id   TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			dry_run     INTEGER NOT NULL DEFAULT 0,
			mode        TEXT NOT NULL DEFAULT '',
			total       INTEGER NOT NULL DEFAULT 0,
			approved    INTEGER NOT NULL DEFAULT 0,
			blocked     INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			trace_json  TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS results (
			run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			node_id     TEXT NOT NULL,
			status      TEXT NOT NULL,
			risk_score  INTEGER NOT NULL,
			risk_level  TEXT NOT NULL,
			skipped     INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, node_id)
		);

		CREATE TABLE IF NOT EXISTS events (
			id           TEXT PRIMARY KEY,
			event_id     TEXT NOT NULL DEFAULT '',
			run_id       TEXT NOT NULL,
			kind         TEXT NOT NULL,
			from_phase   TEXT NOT NULL DEFAULT '',
			phase        TEXT NOT NULL DEFAULT '',
			details_json TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_runs_recorded ON runs(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores the event row and, for trace records, the run and its results.
func (s *SQLite) Record(ctx context.Context, rec events.Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("store: marshal details: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, event_id, run_id, kind, from_phase, phase, details_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.ID, rec.RunID, string(rec.Kind), string(rec.From), string(rec.Phase),
		string(details), ts.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}

	if rec.Trace != nil {
		if err := insertTrace(ctx, tx, rec.Trace, ts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func insertTrace(ctx context.Context, tx *sql.Tx, tr *model.ExecutionTrace, ts time.Time) error {
	raw, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("store: marshal trace: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs
		   (run_id, intent, target_id, status, dry_run, mode, total, approved, blocked, duration_ms, trace_json, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   intent = excluded.intent, target_id = excluded.target_id, status = excluded.status,
		   dry_run = excluded.dry_run, mode = excluded.mode, total = excluded.total,
		   approved = excluded.approved, blocked = excluded.blocked, duration_ms = excluded.duration_ms,
		   trace_json = excluded.trace_json, recorded_at = excluded.recorded_at`,
		tr.RunID, tr.Intent, tr.TargetID, string(tr.Status), boolInt(tr.DryRun), tr.Mode,
		tr.Counts.Total, tr.Counts.Approved, tr.Counts.Blocked, tr.Duration.Milliseconds(),
		string(raw), ts.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_id = ?`, tr.RunID); err != nil {
		return fmt.Errorf("store: clear results: %w", err)
	}
	for _, r := range tr.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (run_id, node_id, status, risk_score, risk_level, skipped, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.RunID, r.NodeID, string(r.Status), r.Risk.Score, string(r.Risk.Level),
			boolInt(r.Skipped), r.Error, r.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("store: insert result %s: %w", r.NodeID, err)
		}
	}
	return nil
}

// RecentRuns lists the most recently recorded runs, newest first.
func (s *SQLite) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, intent, target_id, status, dry_run, total, approved, blocked, duration_ms, recorded_at
		 FROM runs ORDER BY recorded_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var status string
		var dry int
		if err := rows.Scan(&rs.RunID, &rs.Intent, &rs.TargetID, &status, &dry,
			&rs.Total, &rs.Approved, &rs.Blocked, &rs.DurationMs, &rs.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		rs.Status = model.RunStatus(status)
		rs.DryRun = dry != 0
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Trace returns the stored trace of runID.
func (s *SQLite) Trace(ctx context.Context, runID string) (*model.ExecutionTrace, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT trace_json FROM runs WHERE run_id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query trace: %w", err)
	}
	var tr model.ExecutionTrace
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		return nil, fmt.Errorf("store: decode trace: %w", err)
	}
	return &tr, nil
}

// Events returns the records of runID in insertion order.
func (s *SQLite) Events(ctx context.Context, runID string) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, run_id, kind, from_phase, phase, created_at
		 FROM events WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var kind, from, phase string
		if err := rows.Scan(&e.ID, &e.EventID, &e.RunID, &kind, &from, &phase, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Kind = events.Kind(kind)
		e.From = model.Phase(from)
		e.Phase = model.Phase(phase)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
