package scenario

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/search"
)

func TestLoad_ShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			sc, err := Load(p)
			require.NoError(t, err)
			assert.NotEmpty(t, sc.Name)
			gold, wood := sc.Shortfall()
			assert.Zero(t, gold)
			assert.Zero(t, wood)
			_, err = sc.Root()
			require.NoError(t, err)
		})
	}
}

func TestLoad_Small(t *testing.T) {
	sc, err := Load(filepath.Join("..", "scenarios", "small.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 100, sc.RequiredGold)
	assert.Equal(t, game.UnitView{ID: 1}, sc.Townhall)
	require.Len(t, sc.Resources, 1)
	assert.Equal(t, game.Gold, sc.Resources[0].Kind)

	root, err := sc.Root()
	require.NoError(t, err)
	opts := sc.SearchOptions()
	opts.Logger = slog.New(slog.DiscardHandler)
	res, err := search.New(opts).Plan(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, res.Plan, 4)
}

func TestParse_PlannerSection(t *testing.T) {
	raw := []byte(`
name: tuned
required_gold: 0
required_wood: 100
townhall: {id: 1, x: 3, y: 3}
workers: [{id: 4, x: 3, y: 4}]
resources: [{id: 9, kind: wood, x: 0, y: 0, amount: 100}]
planner:
  max_expansions: 42
  timeout: 1m30s
  group_actions: true
  weights: {resources_left: 1, capacity: 0, workforce: -5}
`)
	sc, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 42, sc.SearchOptions().MaxExpansions)
	assert.Equal(t, 90*time.Second, sc.Planner.Timeout)

	opts := sc.GameOptions()
	assert.True(t, opts.GroupActions)
	assert.Equal(t, game.Weights{ResourcesLeft: 1, Capacity: 0, Workforce: -5}, opts.Weights)
}

func TestParse_WeightOverrides(t *testing.T) {
	base := "townhall: {id: 1}\nworkers: [{id: 2}]\nrequired_gold: 100\n"

	t.Run("all zero turns the heuristic off", func(t *testing.T) {
		sc, err := Parse([]byte(base + "planner: {weights: {resources_left: 0, capacity: 0, workforce: 0}}\n"))
		require.NoError(t, err)
		assert.Equal(t, game.Weights{}, sc.GameOptions().Weights)

		root, err := sc.Root()
		require.NoError(t, err)
		assert.Equal(t, game.Weights{}, root.Env.Weights)
		assert.Zero(t, root.Heuristic())
	})

	t.Run("partial keeps the other defaults", func(t *testing.T) {
		sc, err := Parse([]byte(base + "planner: {weights: {workforce: -5}}\n"))
		require.NoError(t, err)
		want := game.DefaultWeights()
		want.Workforce = -5
		assert.Equal(t, want, sc.GameOptions().Weights)

		root, err := sc.Root()
		require.NoError(t, err)
		assert.Equal(t, want, root.Env.Weights)
	})
}

func TestParse_Defaults(t *testing.T) {
	sc, err := Parse([]byte("townhall: {id: 1}\nworkers: [{id: 2}]\n"))
	require.NoError(t, err)
	assert.Equal(t, search.DefaultMaxExpansions, sc.SearchOptions().MaxExpansions)
	assert.Equal(t, game.DefaultWeights(), sc.GameOptions().Weights)
	assert.False(t, sc.GameOptions().GroupActions)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"not yaml":        "required_gold: [",
		"no workers":      "townhall: {id: 1}\n",
		"bad kind":        "townhall: {id: 1}\nworkers: [{id: 2}]\nresources: [{id: 3, kind: stone}]\n",
		"dup worker":      "townhall: {id: 1}\nworkers: [{id: 2}, {id: 2}]\n",
		"negative amount": "townhall: {id: 1}\nworkers: [{id: 2}]\nresources: [{id: 3, kind: gold, amount: -1}]\n",
		"bad timeout":     "townhall: {id: 1}\nworkers: [{id: 2}]\nplanner: {timeout: -1s}\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestShortfall(t *testing.T) {
	sc, err := Parse([]byte(`
required_gold: 500
required_wood: 50
townhall: {id: 1}
workers: [{id: 2}]
resources: [{id: 3, kind: gold, amount: 300}, {id: 4, kind: wood, amount: 80}]
`))
	require.NoError(t, err)
	gold, wood := sc.Shortfall()
	assert.Equal(t, 200, gold)
	assert.Equal(t, 0, wood)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
