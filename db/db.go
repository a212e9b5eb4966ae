// Package db indexes planning runs in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// DB wraps the SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Run is one planner invocation.
type Run struct {
	ID          string    `db:"id"`
	Scenario    string    `db:"scenario"`
	Outcome     string    `db:"outcome"`
	Cost        float64   `db:"cost"`
	Steps       int       `db:"steps"`
	Expanded    int       `db:"expanded"`
	Generated   int       `db:"generated"`
	Duplicates  int       `db:"duplicates"`
	MaxFrontier int       `db:"max_frontier"`
	ElapsedMs   int64     `db:"elapsed_ms"`
	PlanPath    string    `db:"plan_path"`
	TracePath   string    `db:"trace_path"`
	Error       string    `db:"error"`
	CreatedAt   time.Time `db:"created_at"`
}

// Open opens or creates the run index at path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		outcome TEXT NOT NULL,
		cost REAL NOT NULL,
		steps INTEGER NOT NULL,
		expanded INTEGER NOT NULL,
		generated INTEGER NOT NULL,
		duplicates INTEGER NOT NULL,
		max_frontier INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		plan_path TEXT NOT NULL DEFAULT '',
		trace_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// InsertRun records a run. A zero CreatedAt is set to now.
func (db *DB) InsertRun(r Run) error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.NamedExec(`
		INSERT INTO runs (id, scenario, outcome, cost, steps, expanded, generated, duplicates,
			max_frontier, elapsed_ms, plan_path, trace_path, error, created_at)
		VALUES (:id, :scenario, :outcome, :cost, :steps, :expanded, :generated, :duplicates,
			:max_frontier, :elapsed_ms, :plan_path, :trace_path, :error, :created_at)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun looks up a run by id.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// RecentRuns returns the newest runs first. An empty scenario matches all.
func (db *DB) RecentRuns(scenario string, limit int) ([]Run, error) {
	var runs []Run
	var err error
	if scenario == "" {
		err = db.conn.Select(&runs, "SELECT * FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	} else {
		err = db.conn.Select(&runs,
			"SELECT * FROM runs WHERE scenario = ? ORDER BY created_at DESC, id LIMIT ?",
			scenario, limit,
		)
	}
	return runs, err
}

// BestRun returns the cheapest successful run of a scenario.
func (db *DB) BestRun(scenario string) (Run, error) {
	var r Run
	err := db.conn.Get(&r,
		"SELECT * FROM runs WHERE scenario = ? AND outcome = 'found' ORDER BY cost, created_at LIMIT 1",
		scenario,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no successful run of %s", ErrRunNotFound, scenario)
	}
	return r, err
}
