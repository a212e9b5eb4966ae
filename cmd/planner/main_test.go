package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/runner"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
	"github.com/erikjearl/SEPIA-Environments/store"
)

func TestRun_ArchivesAndIndexes(t *testing.T) {
	dir := t.TempDir()
	cfg := config{
		scenarioPath: filepath.Join("..", "..", "scenarios", "small.yaml"),
		outDir:       dir,
		dbPath:       filepath.Join(dir, "runs.db"),
		logFormat:    "json",
	}
	require.NoError(t, run(context.Background(), cfg))

	index, err := db.Open(cfg.dbPath)
	require.NoError(t, err)
	defer index.Close()

	runs, err := index.RecentRuns("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, "found", r.Outcome)
	assert.Equal(t, 4, r.Steps)
	assert.InDelta(t, 4.0, r.Cost, 1e-9)
	assert.Empty(t, r.Error)

	rows, err := store.ReadPlanParquet(r.PlanPath)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, r.ID, rows[0].RunID)

	trace, err := store.ReadTraceParquet(r.TracePath)
	require.NoError(t, err)
	require.NotEmpty(t, trace)
	assert.True(t, trace[len(trace)-1].Done)
}

func TestRun_RecordsFailures(t *testing.T) {
	dir := t.TempDir()
	cfg := config{
		scenarioPath:  filepath.Join("..", "..", "scenarios", "midas_small.yaml"),
		dbPath:        filepath.Join(dir, "runs.db"),
		maxExpansions: 2,
		logFormat:     "text",
	}
	err := run(context.Background(), cfg)
	require.ErrorIs(t, err, search.ErrSearchExhausted)

	index, err := db.Open(cfg.dbPath)
	require.NoError(t, err)
	defer index.Close()
	runs, err := index.RecentRuns("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "exhausted", runs[0].Outcome)
	assert.NotEmpty(t, runs[0].Error)
	assert.Empty(t, runs[0].PlanPath)
}

func TestPrintHistory_BestPerScenario(t *testing.T) {
	index, err := db.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer index.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range []db.Run{
		{ID: "cheap", Scenario: "small", Outcome: "found", Cost: 4, Steps: 4},
		{ID: "pricey", Scenario: "small", Outcome: "found", Cost: 6, Steps: 6},
		{ID: "gaveup", Scenario: "midas", Outcome: "exhausted", Error: "search budget exhausted"},
	} {
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, index.InsertRun(r))
	}

	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, index, 10))
	out := buf.String()

	_, best, ok := strings.Cut(out, "best:\n")
	require.True(t, ok, out)
	lines := strings.Split(strings.TrimSpace(best), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "midas")
	assert.Contains(t, lines[0], "no plan found yet")
	assert.Contains(t, lines[1], "small")
	assert.Contains(t, lines[1], "cost=4.00")
	assert.Contains(t, lines[1], "cheap")
}

func TestNewLogger(t *testing.T) {
	for _, f := range []string{"text", "json", "pretty"} {
		_, err := newLogger(nil, f, false)
		assert.NoError(t, err, f)
	}
	_, err := newLogger(nil, "xml", false)
	assert.Error(t, err)
}

func TestModel_QuitsWhenSearchEnds(t *testing.T) {
	cancelled := false
	m := initialModel("small", "r", 100, 0, nil, nil, func() { cancelled = true })

	next, _ := m.Update(search.Progress{Expanded: 10})
	m = next.(model)
	assert.Equal(t, 10, m.last.Expanded)

	next, _ = m.Update(teaKey("q"))
	m = next.(model)
	assert.True(t, cancelled)
	assert.Nil(t, m.done)

	next, cmd := m.Update(searchDone{res: &search.Result{Outcome: search.OutcomeFound}})
	m = next.(model)
	require.NotNil(t, m.done)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Found a plan")
}

func TestSearchJob_WaitAfterViewTookResult(t *testing.T) {
	sc, err := scenario.Load(filepath.Join("..", "..", "scenarios", "small.yaml"))
	require.NoError(t, err)

	job := startSearch(context.Background(), sc, runner.Options{Logger: slog.New(slog.DiscardHandler)})
	viewGot := <-job.results
	require.NoError(t, viewGot.err)

	done := job.wait()
	require.NoError(t, done.err)
	require.NotNil(t, done.res)
	assert.Equal(t, search.OutcomeFound, done.res.Outcome)
	assert.Same(t, viewGot.out, done.out)
}

func TestSearchJob_WaitStopsRunningSearch(t *testing.T) {
	sc, err := scenario.Load(filepath.Join("..", "..", "scenarios", "midas_large.yaml"))
	require.NoError(t, err)
	// Gold is banked in hundreds, so this goal is never met and the space is
	// far too large to exhaust.
	sc.RequiredGold = 1050
	sc.Planner.MaxExpansions = -1
	sc.Planner.Timeout = 0

	job := startSearch(context.Background(), sc, runner.Options{Logger: slog.New(slog.DiscardHandler)})
	done := job.wait()
	require.ErrorIs(t, done.err, search.ErrSearchExhausted)
	assert.True(t, errors.Is(done.err, context.Canceled))
	require.NotNil(t, done.out)
	assert.Equal(t, "exhausted", done.out.Record.Outcome)
}

func teaKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
