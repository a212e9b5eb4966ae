// Package runner plans one scenario end to end: search, progress trace, plan
// archive and run index entry.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/erikjearl/SEPIA-Environments/db"
	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/scenario"
	"github.com/erikjearl/SEPIA-Environments/search"
	"github.com/erikjearl/SEPIA-Environments/store"
)

// Options configures a run. Every field is optional.
type Options struct {
	// RunID defaults to a fresh UUID.
	RunID string
	// OutDir receives plan and trace parquet files.
	OutDir string
	// Index records the run.
	Index  *db.DB
	Logger *slog.Logger

	ProgressEvery int
	OnProgress    func(search.Progress)
}

// Outcome is everything a run produced. Root and Record are always set once
// the scenario built a valid root state.
type Outcome struct {
	Root   *game.WorldState
	Result *search.Result
	Record db.Run
}

// Run plans sc. The returned error is the search error (for example
// search.ErrUnreachableGoal) or the first archive or index failure; the
// Outcome is non-nil whenever the search ran.
func Run(ctx context.Context, sc scenario.Scenario, opts Options) (*Outcome, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.With("run_id", runID, "scenario", sc.Name)

	if gold, wood := sc.Shortfall(); gold > 0 || wood > 0 {
		log.Warn("map cannot supply the goal", "missing_gold", gold, "missing_wood", wood)
	}
	root, err := sc.Root()
	if err != nil {
		return nil, err
	}

	if sc.Planner.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sc.Planner.Timeout)
		defer cancel()
	}

	searchOpts := sc.SearchOptions()
	searchOpts.Logger = log
	if opts.ProgressEvery > 0 {
		searchOpts.ProgressEvery = opts.ProgressEvery
	}

	var trace *store.TraceWriter
	if opts.OutDir != "" {
		trace, err = store.NewTraceWriter(opts.OutDir, runID)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case trace != nil && opts.OnProgress != nil:
		searchOpts.OnProgress = func(p search.Progress) {
			trace.Observe(p)
			opts.OnProgress(p)
		}
	case trace != nil:
		searchOpts.OnProgress = trace.Observe
	default:
		searchOpts.OnProgress = opts.OnProgress
	}

	res, planErr := search.New(searchOpts).Plan(ctx, root)

	out := &Outcome{
		Root:   root,
		Result: res,
		Record: db.Run{
			ID:          runID,
			Scenario:    sc.Name,
			Outcome:     res.Outcome.String(),
			Cost:        res.Cost,
			Steps:       len(res.Plan),
			Expanded:    res.Expanded,
			Generated:   res.Generated,
			Duplicates:  res.Duplicates,
			MaxFrontier: res.MaxFrontier,
			ElapsedMs:   res.Elapsed.Milliseconds(),
		},
	}
	if planErr != nil {
		out.Record.Error = planErr.Error()
	}

	if trace != nil {
		path, _, err := trace.Finalize()
		if err != nil {
			log.Warn("progress trace not written", "error", err)
		}
		out.Record.TracePath = path
	}

	if planErr == nil && opts.OutDir != "" {
		rows, err := store.PlanRows(runID, sc.Name, root, res.Plan)
		if err != nil {
			return out, fmt.Errorf("archive plan: %w", err)
		}
		path, err := store.WritePlanParquet(opts.OutDir, runID, rows)
		if err != nil {
			return out, err
		}
		out.Record.PlanPath = path
		log.Info("plan archived", "path", path, "steps", len(rows))
	}

	if opts.Index != nil {
		if err := opts.Index.InsertRun(out.Record); err != nil {
			return out, err
		}
	}
	return out, planErr
}
