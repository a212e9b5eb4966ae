package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/erikjearl/SEPIA-Environments/store"
)

// DBCache keeps an in-memory DuckDB view over the plan archives in dataDir
// and reopens it periodically so new runs show up.
type DBCache struct {
	dataDir     string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
	closed      bool
}

var errDuckClosed = errors.New("duckdb view is closed")

func NewDBCache(dataDir string, refreshRate time.Duration) *DBCache {
	return &DBCache{dataDir: dataDir, refreshRate: refreshRate}
}

// With runs fn against the current view, refreshing it first if it is stale.
// fn holds the read lock, so a refresh waits for running queries before it
// closes the old connection.
func (c *DBCache) With(fn func(*sql.DB) error) error {
	if err := c.refreshIfStale(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return errDuckClosed
	}
	return fn(c.db)
}

func (c *DBCache) refreshIfStale() error {
	c.mu.RLock()
	fresh := c.db != nil && time.Since(c.lastRefresh) < c.refreshRate
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errDuckClosed
	}
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return nil
	}
	return c.refreshLocked()
}

func (c *DBCache) refreshLocked() error {
	start := time.Now()
	newDB, err := openDuckDB(c.dataDir)
	if err != nil {
		return err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	slog.Debug("duckdb view refreshed", "dir", c.dataDir, "took", time.Since(start))
	return nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// openDuckDB creates a view "steps" over every finished plan archive. Files
// still under tmp/ are not matched by the glob.
func openDuckDB(dataDir string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}

	glob := filepath.Join(dataDir, store.PlanFileName("*"))
	matches, _ := filepath.Glob(glob)

	sqlText := `CREATE OR REPLACE VIEW steps AS
		SELECT * FROM read_parquet('` + escapeSQLString(glob) + `', union_by_name=true)`
	if len(matches) == 0 {
		// read_parquet fails on an empty glob.
		sqlText = `CREATE OR REPLACE VIEW steps AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS run_id,
					NULL::VARCHAR AS scenario,
					NULL::INTEGER AS step,
					NULL::VARCHAR AS kind,
					NULL::DOUBLE AS cum_cost,
					NULL::INTEGER AS workers
			) WHERE 1=0`
	}
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ScenarioStats aggregates every archived plan of one scenario.
type ScenarioStats struct {
	Scenario   string  `json:"scenario"`
	Runs       int64   `json:"runs"`
	BestCost   float64 `json:"best_cost"`
	AvgCost    float64 `json:"avg_cost"`
	AvgSteps   float64 `json:"avg_steps"`
	MaxBuilds  int64   `json:"max_builds"`
	MaxWorkers int64   `json:"max_workers"`
}

func queryScenarioStats(ctx context.Context, db *sql.DB) ([]ScenarioStats, error) {
	rows, err := db.QueryContext(ctx, `
		WITH plans AS (
			SELECT
				run_id,
				scenario,
				CAST(MAX(step) + 1 AS BIGINT) AS steps,
				MAX(cum_cost) AS cost,
				count_if(kind = 'build_worker') AS builds,
				CAST(MAX(workers) AS BIGINT) AS workers
			FROM steps
			GROUP BY run_id, scenario
		)
		SELECT
			scenario,
			COUNT(*) AS runs,
			MIN(cost) AS best_cost,
			AVG(cost) AS avg_cost,
			AVG(steps) AS avg_steps,
			MAX(builds) AS max_builds,
			MAX(workers) AS max_workers
		FROM plans
		GROUP BY scenario
		ORDER BY scenario`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScenarioStats
	for rows.Next() {
		var s ScenarioStats
		if err := rows.Scan(&s.Scenario, &s.Runs, &s.BestCost, &s.AvgCost, &s.AvgSteps, &s.MaxBuilds, &s.MaxWorkers); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
