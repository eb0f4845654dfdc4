// Package ledger keeps a SQLite record of curation runs and what each gate
// removed, so a dataset's cleaning history can be audited later.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forPelevin/asrcurate/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    num_std_devs REAL NOT NULL,
    recorded_at  TEXT NOT NULL,
    input_rows   INTEGER NOT NULL,
    input_hours  REAL NOT NULL,
    final_rows   INTEGER NOT NULL,
    final_hours  REAL NOT NULL,
    best_file    TEXT NOT NULL,
    status       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gate_results (
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    gate       TEXT NOT NULL,
    reason     TEXT NOT NULL,
    input_rows INTEGER NOT NULL,
    rejected   INTEGER NOT NULL,
    hours      REAL NOT NULL,
    file       TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
`

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the ledger database and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores a completed run and its gate results in one transaction.
func (s *Store) RecordRun(ctx context.Context, sum types.Summary, numStdDevs float64) error {
	status := "ok"
	if !sum.Reconciles() {
		status = "unreconciled"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, num_std_devs, recorded_at, input_rows, input_hours, final_rows, final_hours, best_file, status)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Source, numStdDevs, s.now().UTC().Format(time.RFC3339),
		sum.Input, sum.InputHours, sum.Final, sum.FinalHours, sum.BestFile, status,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, g := range sum.Gates {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO gate_results (run_id, seq, gate, reason, input_rows, rejected, hours, file)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, i, g.Gate, string(g.Reason), g.Input, g.Rejected, g.Hours, g.File,
		)
		if err != nil {
			return fmt.Errorf("insert gate result %s: %w", g.Gate, err)
		}
	}
	return tx.Commit()
}

// Run is a stored run header.
type Run struct {
	ID         string
	Source     string
	NumStdDevs float64
	RecordedAt string
	Input      int
	InputHours float64
	Final      int
	FinalHours float64
	BestFile   string
	Status     string
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, num_std_devs, recorded_at, input_rows, input_hours, final_rows, final_hours, best_file, status
         FROM runs ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.NumStdDevs, &r.RecordedAt, &r.Input, &r.InputHours,
			&r.Final, &r.FinalHours, &r.BestFile, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Gates returns the gate results of one run in pipeline order.
func (s *Store) Gates(ctx context.Context, runID string) ([]types.GateResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gate, reason, input_rows, rejected, hours, file FROM gate_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query gate results: %w", err)
	}
	defer rows.Close()

	var out []types.GateResult
	for rows.Next() {
		var g types.GateResult
		var reason string
		if err := rows.Scan(&g.Gate, &reason, &g.Input, &g.Rejected, &g.Hours, &g.File); err != nil {
			return nil, fmt.Errorf("scan gate result: %w", err)
		}
		g.Reason = types.Reason(reason)
		out = append(out, g)
	}
	return out, rows.Err()
}
