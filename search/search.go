// Package search runs best-first planning over game.WorldState.
//
// The frontier is ordered by cost-so-far plus heuristic. Expanded states are
// remembered by their physical key and never expanded twice; a cheaper path to
// an already closed state is not reopened. Plans are read off the goal node's
// own history, so there are no parent pointers.
package search

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

var (
	// ErrUnreachableGoal means the frontier emptied without reaching a goal.
	ErrUnreachableGoal = errors.New("goal unreachable")
	// ErrSearchExhausted means the expansion or time budget ran out first.
	ErrSearchExhausted = errors.New("search budget exhausted")
)

const (
	DefaultMaxExpansions = 250_000
	DefaultProgressEvery = 1_000
)

// Outcome classifies how a search ended.
type Outcome uint8

const (
	OutcomeFound Outcome = iota
	OutcomeUnreachable
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Options holds planner configuration.
type Options struct {
	// MaxExpansions caps expanded nodes. Zero means DefaultMaxExpansions,
	// negative means no cap (the context still bounds the search).
	MaxExpansions int
	// ProgressEvery is how many expansions pass between OnProgress calls.
	ProgressEvery int
	OnProgress    func(Progress)
	Logger        *slog.Logger
}

// DefaultOptions returns the budgets the CLI uses when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxExpansions: DefaultMaxExpansions,
		ProgressEvery: DefaultProgressEvery,
	}
}

// Progress is a point-in-time view of a running search.
type Progress struct {
	Expanded   int
	Generated  int
	Duplicates int
	Frontier   int
	// Best* describe the most recently expanded node.
	BestPriority float64
	BestGold     int
	BestWood     int
	BestWorkers  int
	Elapsed      time.Duration
	Done         bool
}

// Result is returned by every search, successful or not.
type Result struct {
	Outcome Outcome
	// Plan is ordered first action to last. Empty unless Outcome is found.
	Plan  []game.Action
	Cost  float64
	Final *game.WorldState

	Expanded    int
	Generated   int
	Duplicates  int
	MaxFrontier int
	Elapsed     time.Duration
}

// Planner runs searches with fixed options. It keeps no state between runs.
type Planner struct {
	opts Options
	log  *slog.Logger
}

// New creates a planner. Zero-valued options fall back to the defaults.
func New(opts Options) *Planner {
	if opts.MaxExpansions == 0 {
		opts.MaxExpansions = DefaultMaxExpansions
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Planner{opts: opts, log: log}
}

// Plan searches from root for a state whose stockpiles match the goal.
//
// The returned Result is never nil. The error is nil on success,
// ErrUnreachableGoal when no plan exists in the explored space, and
// ErrSearchExhausted (wrapping ctx.Err() for deadlines and cancellation) when
// a budget ran out.
func (p *Planner) Plan(ctx context.Context, root *game.WorldState) (*Result, error) {
	start := time.Now()
	res := &Result{}

	p.log.Info("planning started",
		"required_gold", root.Env.RequiredGold,
		"required_wood", root.Env.RequiredWood,
		"workers", len(root.Workers),
		"resources", len(root.Resources),
		"food", root.Food,
		"max_expansions", p.opts.MaxExpansions,
	)

	open := &frontier{}
	closed := make(map[game.StateKey]struct{})
	var seq uint64

	push := func(s *game.WorldState) {
		heap.Push(open, &node{state: s, priority: s.Priority(), seq: seq})
		seq++
		res.Generated++
		res.MaxFrontier = max(res.MaxFrontier, open.Len())
	}
	push(root)

	var last *game.WorldState
	progress := func(done bool) {
		if p.opts.OnProgress == nil {
			return
		}
		pr := Progress{
			Expanded:   res.Expanded,
			Generated:  res.Generated,
			Duplicates: res.Duplicates,
			Frontier:   open.Len(),
			Elapsed:    time.Since(start),
			Done:       done,
		}
		if last != nil {
			pr.BestPriority = last.Priority()
			pr.BestGold = last.Gold
			pr.BestWood = last.Wood
			pr.BestWorkers = len(last.Workers)
		}
		p.opts.OnProgress(pr)
	}

	finish := func(outcome Outcome, err error) (*Result, error) {
		res.Outcome = outcome
		res.Elapsed = time.Since(start)
		progress(true)
		attrs := []any{
			"outcome", outcome,
			"expanded", res.Expanded,
			"generated", res.Generated,
			"duplicates", res.Duplicates,
			"max_frontier", res.MaxFrontier,
			"elapsed", res.Elapsed,
		}
		if err != nil {
			p.log.Warn("planning failed", append(attrs, "error", err)...)
			return res, err
		}
		p.log.Info("planning finished", append(attrs, "steps", len(res.Plan), "cost", res.Cost)...)
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(OutcomeExhausted, fmt.Errorf("%w: %w", ErrSearchExhausted, err))
		}
		if open.Len() == 0 {
			return finish(OutcomeUnreachable, ErrUnreachableGoal)
		}

		n := heap.Pop(open).(*node)
		s := n.state

		if s.IsGoal() {
			res.Plan = s.PlanCopy()
			res.Cost = s.Cost
			res.Final = s
			return finish(OutcomeFound, nil)
		}

		key := s.Key()
		if _, seen := closed[key]; seen {
			res.Duplicates++
			continue
		}

		if p.opts.MaxExpansions > 0 && res.Expanded >= p.opts.MaxExpansions {
			return finish(OutcomeExhausted, fmt.Errorf("%w: %d expansions", ErrSearchExhausted, res.Expanded))
		}

		closed[key] = struct{}{}
		res.Expanded++
		last = s

		if p.log.Enabled(ctx, slog.LevelDebug) {
			p.log.Debug("expand",
				"n", res.Expanded,
				"priority", n.priority,
				"cost", s.Cost,
				"gold", s.Gold,
				"wood", s.Wood,
				"workers", len(s.Workers),
				"frontier", open.Len(),
			)
		}

		for _, child := range rules.Children(s) {
			if _, seen := closed[child.Key()]; seen {
				res.Duplicates++
				continue
			}
			push(child)
		}

		if res.Expanded%p.opts.ProgressEvery == 0 {
			progress(false)
		}
	}
}
