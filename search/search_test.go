package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

func quiet(opts Options) Options {
	opts.Logger = slog.New(slog.DiscardHandler)
	return opts
}

func root(t *testing.T, snap game.Snapshot, opts game.Options) *game.WorldState {
	t.Helper()
	s, err := game.NewWorldState(snap, opts)
	require.NoError(t, err)
	return s
}

func oneMine(amount, required int) game.Snapshot {
	return game.Snapshot{
		Townhall:           game.UnitView{ID: 1},
		Workers:            []game.UnitView{{ID: 2}},
		Resources:          []game.ResourceView{{ID: 10, Kind: game.Gold, X: 2, Amount: amount}},
		PopulationHeadroom: 1,
		WorkerTemplateID:   26,
		RequiredGold:       required,
	}
}

// checkPlan replays a plan from its root and checks every step is legal and
// the last state is a goal.
func checkPlan(t *testing.T, start *game.WorldState, res *Result) {
	t.Helper()
	trace, err := rules.Replay(start, res.Plan)
	require.NoError(t, err)
	final := trace[len(trace)-1]
	require.True(t, final.IsGoal(), "final state: %s", final)
	assert.InDelta(t, res.Cost, final.Cost, 1e-9)
}

func TestPlan_SingleTrip(t *testing.T) {
	start := root(t, oneMine(100, 100), game.DefaultOptions())

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, res.Outcome)

	want := []game.Action{
		rules.Move{Worker: 2, From: game.Position{}, To: game.Position{X: 2}},
		rules.Harvest{Worker: 2, Resource: 10, At: game.Position{X: 2}},
		rules.Move{Worker: 2, From: game.Position{X: 2}, To: game.Position{}},
		rules.Deposit{Worker: 2, Townhall: game.Position{}},
	}
	assert.Equal(t, want, res.Plan)
	assert.InDelta(t, 2*game.Distance(game.Position{}, game.Position{X: 2}), res.Cost, 1e-9)
	require.NotNil(t, res.Final)
	assert.True(t, res.Final.IsGoal())
	checkPlan(t, start, res)
}

func TestPlan_AlreadyAtGoal(t *testing.T) {
	start := root(t, oneMine(100, 0), game.DefaultOptions())

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, res.Plan)
	assert.Equal(t, 0, res.Expanded)
}

func TestPlan_Unreachable(t *testing.T) {
	start := root(t, oneMine(100, 200), game.DefaultOptions())

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.ErrorIs(t, err, ErrUnreachableGoal)
	require.NotNil(t, res)
	assert.Equal(t, OutcomeUnreachable, res.Outcome)
	assert.Empty(t, res.Plan)
	assert.Positive(t, res.Expanded)
}

func TestPlan_OvershootIsUnreachable(t *testing.T) {
	// Every harvest yields 100, so 150 can never be banked exactly.
	start := root(t, oneMine(300, 150), game.DefaultOptions())

	_, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.ErrorIs(t, err, ErrUnreachableGoal)
}

func TestPlan_GoldAndWood(t *testing.T) {
	snap := game.Snapshot{
		Townhall: game.UnitView{ID: 1, X: 5, Y: 5},
		Workers:  []game.UnitView{{ID: 2, X: 5, Y: 6}},
		Resources: []game.ResourceView{
			{ID: 10, Kind: game.Gold, X: 1, Y: 1, Amount: 300},
			{ID: 11, Kind: game.Gold, X: 9, Y: 9, Amount: 100},
			{ID: 12, Kind: game.Wood, X: 5, Y: 1, Amount: 400},
			{ID: 13, Kind: game.Wood, X: 8, Y: 5, Amount: 50},
		},
		PopulationHeadroom: 0,
		RequiredGold:       200,
		RequiredWood:       250,
	}
	start := root(t, snap, game.DefaultOptions())

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.NoError(t, err)
	t.Logf("plan (%d steps, cost %.2f, expanded %d):", len(res.Plan), res.Cost, res.Expanded)
	for i, a := range res.Plan {
		t.Logf("  %2d %s", i, a)
	}
	checkPlan(t, start, res)

	// The root is not disturbed by the search.
	assert.Equal(t, 300, start.Resources[10].Amount)
	assert.Empty(t, start.Plan)
}

func TestPlan_BuildsWorkers(t *testing.T) {
	snap := oneMine(2000, 600)
	snap.Resources[0].X = 3
	start := root(t, snap, game.DefaultOptions())

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.NoError(t, err)
	checkPlan(t, start, res)

	built := 0
	for _, a := range res.Plan {
		if a.Kind() == game.ActionBuildWorker {
			built++
		}
	}
	assert.Equal(t, 1, built, "the workforce term makes the planner spend its food")
	assert.Len(t, res.Final.Workers, 2)
	assert.Equal(t, 0, res.Final.Food)
}

func TestPlan_GroupActions(t *testing.T) {
	snap := oneMine(400, 200)
	snap.Workers = []game.UnitView{{ID: 2}, {ID: 3}}
	opts := game.DefaultOptions()
	opts.GroupActions = true
	start := root(t, snap, opts)

	res, err := New(quiet(DefaultOptions())).Plan(context.Background(), start)
	require.NoError(t, err)
	checkPlan(t, start, res)
}

func TestPlan_Deterministic(t *testing.T) {
	snap := game.Snapshot{
		Townhall: game.UnitView{ID: 1, X: 4, Y: 4},
		Workers:  []game.UnitView{{ID: 2, X: 4, Y: 4}, {ID: 3, X: 0, Y: 0}},
		Resources: []game.ResourceView{
			{ID: 10, Kind: game.Gold, X: 0, Y: 2, Amount: 200},
			{ID: 11, Kind: game.Gold, X: 8, Y: 4, Amount: 200},
			{ID: 12, Kind: game.Wood, X: 4, Y: 0, Amount: 200},
		},
		RequiredGold: 300,
		RequiredWood: 100,
	}

	var first *Result
	for i := 0; i < 3; i++ {
		res, err := New(quiet(DefaultOptions())).Plan(context.Background(), root(t, snap, game.DefaultOptions()))
		require.NoError(t, err)
		if first == nil {
			first = res
			continue
		}
		assert.Equal(t, first.Cost, res.Cost)
		assert.Equal(t, first.Plan, res.Plan)
		assert.Equal(t, first.Expanded, res.Expanded)
	}
}

func TestPlan_ExpansionBudget(t *testing.T) {
	start := root(t, oneMine(1000, 500), game.DefaultOptions())

	res, err := New(quiet(Options{MaxExpansions: 3})).Plan(context.Background(), start)
	require.ErrorIs(t, err, ErrSearchExhausted)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 3, res.Expanded)
}

func TestPlan_Cancelled(t *testing.T) {
	start := root(t, oneMine(100, 100), game.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(quiet(DefaultOptions())).Plan(ctx, start)
	require.ErrorIs(t, err, ErrSearchExhausted)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, OutcomeExhausted, res.Outcome)
}

func TestPlan_Progress(t *testing.T) {
	start := root(t, oneMine(300, 300), game.DefaultOptions())

	var got []Progress
	opts := quiet(Options{ProgressEvery: 2, OnProgress: func(p Progress) { got = append(got, p) }})
	res, err := New(opts).Plan(context.Background(), start)
	require.NoError(t, err)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.Done)
	assert.Equal(t, res.Expanded, last.Expanded)
	for _, p := range got[:len(got)-1] {
		assert.False(t, p.Done)
		assert.Zero(t, p.Expanded%2)
	}
}
