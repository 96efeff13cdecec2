// Package runlog keeps a history of training runs in a SQLite database.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one end-to-end training run for a node.
type Run struct {
	ID           string
	NodeID       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Resumed      bool
	EpochsRun    int
	StoppedEarly bool
	BestLoss     float64
	TrainRMSE    float64
	TestRMSE     float64
	BaselineRMSE *float64
	ModelPath    string
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Store records runs in SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty run log path")
	}
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		resumed INTEGER NOT NULL DEFAULT 0,
		epochs_run INTEGER NOT NULL,
		stopped_early INTEGER NOT NULL DEFAULT 0,
		best_loss REAL,
		train_rmse REAL,
		test_rmse REAL,
		baseline_rmse REAL,
		model_path TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_node ON runs(node_id, started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Record stores r. An empty ID is replaced with a new one, which is returned.
func (s *Store) Record(ctx context.Context, r Run) (string, error) {
	if r.NodeID == "" {
		return "", fmt.Errorf("run has no node id")
	}
	if r.ID == "" {
		r.ID = NewRunID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = r.StartedAt
	}
	var baseline sql.NullFloat64
	if r.BaselineRMSE != nil {
		baseline = sql.NullFloat64{Float64: *r.BaselineRMSE, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, node_id, started_at, finished_at, resumed, epochs_run,
			stopped_early, best_loss, train_rmse, test_rmse, baseline_rmse, model_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.NodeID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.Resumed, r.EpochsRun,
		r.StoppedEarly, r.BestLoss, r.TrainRMSE, r.TestRMSE, baseline, r.ModelPath)
	if err != nil {
		return "", fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return r.ID, nil
}

// List returns the most recent runs, newest first. An empty nodeID lists
// runs for every node; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, nodeID string, limit int) ([]Run, error) {
	query := `SELECT id, node_id, started_at, finished_at, resumed, epochs_run, stopped_early,
		best_loss, train_rmse, test_rmse, baseline_rmse, model_path FROM runs`
	var args []any
	if nodeID != "" {
		query += ` WHERE node_id = ?`
		args = append(args, nodeID)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			baseline          sql.NullFloat64
			modelPath         sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.NodeID, &started, &finished, &r.Resumed, &r.EpochsRun,
			&r.StoppedEarly, &r.BestLoss, &r.TrainRMSE, &r.TestRMSE, &baseline, &modelPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		if baseline.Valid {
			v := baseline.Float64
			r.BaselineRMSE = &v
		}
		r.ModelPath = modelPath.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
