package runner

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
	"github.com/erikjearl/SEPIA-Environments/store"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func load(t *testing.T, name string) scenario.Scenario {
	t.Helper()
	sc, err := scenario.Load(filepath.Join("..", "scenarios", name))
	require.NoError(t, err)
	return sc
}

func TestRun_Found(t *testing.T) {
	dir := t.TempDir()
	index, err := db.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer index.Close()

	var samples int
	out, err := Run(context.Background(), load(t, "small.yaml"), Options{
		RunID:         "fixed",
		OutDir:        dir,
		Index:         index,
		Logger:        quiet(),
		ProgressEvery: 1,
		OnProgress:    func(search.Progress) { samples++ },
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Positive(t, samples)

	assert.Equal(t, "fixed", out.Record.ID)
	assert.Equal(t, filepath.Join(dir, "plan_fixed.parquet"), out.Record.PlanPath)
	assert.NotEmpty(t, out.Record.TracePath)

	rec, err := index.GetRun("fixed")
	require.NoError(t, err)
	assert.Equal(t, "found", rec.Outcome)
	assert.Equal(t, 4, rec.Steps)

	rows, err := store.ReadPlanParquet(out.Record.PlanPath)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	trace, err := store.ReadTraceParquet(out.Record.TracePath)
	require.NoError(t, err)
	assert.Len(t, trace, samples)
}

func TestRun_Unreachable(t *testing.T) {
	sc := load(t, "small.yaml")
	sc.RequiredGold = 200

	out, err := Run(context.Background(), sc, Options{Logger: quiet()})
	require.ErrorIs(t, err, search.ErrUnreachableGoal)
	require.NotNil(t, out)
	assert.Equal(t, "unreachable", out.Record.Outcome)
	assert.Empty(t, out.Record.PlanPath)
	assert.NotEmpty(t, out.Record.ID, "a run id is generated")
}

func TestRun_Timeout(t *testing.T) {
	sc := load(t, "midas_large.yaml")
	sc.Planner.Timeout = 1

	out, err := Run(context.Background(), sc, Options{Logger: quiet()})
	require.ErrorIs(t, err, search.ErrSearchExhausted)
	assert.Equal(t, "exhausted", out.Record.Outcome)
}
