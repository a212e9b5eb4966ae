package simlink

import (
	"context"
	"fmt"
	"slices"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

// ExecStats summarizes a plan execution.
type ExecStats struct {
	Steps int
	Turns int
	// UnitIDs maps planner worker ids to simulation unit ids, including
	// workers built during execution.
	UnitIDs map[int]int
}

// Execute drives plan against the simulation one action at a time.
//
// Each action is translated against the units' live positions and sent as a
// "commands" event. The simulation answers every turn with a "feedback"
// event: a failed command aborts the run, an incomplete one is waited out by
// sending empty command turns. Workers the plan builds are matched to the
// first new unit ids the simulation reports.
func (c *Client) Execute(ctx context.Context, root *game.WorldState, plan []game.Action) (ExecStats, error) {
	stats := ExecStats{UnitIDs: make(map[int]int, len(root.Workers))}
	live := make(map[int]game.Position, len(root.Workers))
	for id, w := range root.Workers {
		stats.UnitIDs[id] = id
		live[id] = w.Position
	}

	cur := root
	for i, a := range plan {
		next, err := rules.Apply(cur, a)
		if err != nil {
			return stats, fmt.Errorf("step %d: %w", i, err)
		}

		planned := make(map[int]game.Position, len(stats.UnitIDs))
		for pid, sid := range stats.UnitIDs {
			if p, ok := live[sid]; ok {
				planned[pid] = p
			}
		}
		cmds, err := rules.Translate(a, planned)
		if err != nil {
			return stats, fmt.Errorf("step %d %s: %w", i, a, err)
		}
		for j := range cmds {
			if cmds[j].Kind != rules.PrimitiveProduction {
				cmds[j].UnitID = stats.UnitIDs[cmds[j].UnitID]
			}
		}

		c.log.Debug("execute step", "step", i, "action", a, "commands", len(cmds))
		if err := c.send(EventCommands, CommandsMessage{Step: i, Commands: cmds}); err != nil {
			return stats, err
		}

		fb, turns, err := c.awaitStep(ctx, i, cmds)
		stats.Turns += turns
		if err != nil {
			return stats, fmt.Errorf("step %d %s: %w", i, a, err)
		}

		clear(live)
		for _, u := range fb.Units {
			live[u.ID] = u.Position()
		}
		if a.Kind() == game.ActionBuildWorker {
			mapNewWorkers(stats.UnitIDs, cur, next, fb.Units, root.Env.TownhallID)
		}

		cur = next
		stats.Steps++
	}

	if err := c.send(EventDone, map[string]int{"steps": stats.Steps}); err != nil {
		return stats, err
	}
	c.log.Info("plan executed", "steps", stats.Steps, "turns", stats.Turns)
	return stats, nil
}

// awaitStep reads feedback until every unit commanded in this step has
// completed.
func (c *Client) awaitStep(ctx context.Context, step int, cmds []rules.Command) (FeedbackMessage, int, error) {
	for turns := 1; ; turns++ {
		var fb FeedbackMessage
		if err := c.expect(ctx, EventFeedback, &fb); err != nil {
			return fb, turns, err
		}

		incomplete := false
		for _, r := range fb.Results {
			switch r.Feedback {
			case rules.Failed:
				return fb, turns, fmt.Errorf("%w: unit %d on turn %d", ErrCommandFailed, r.UnitID, fb.Turn)
			case rules.Incomplete:
				if commanded(cmds, r.UnitID) {
					incomplete = true
				}
			}
		}
		if !incomplete {
			return fb, turns, nil
		}
		if turns >= c.cfg.MaxIncompleteTurns {
			return fb, turns, fmt.Errorf("%w: %d turns", ErrStalled, turns)
		}
		if err := c.send(EventCommands, CommandsMessage{Step: step}); err != nil {
			return fb, turns, err
		}
	}
}

func commanded(cmds []rules.Command, unitID int) bool {
	return slices.ContainsFunc(cmds, func(c rules.Command) bool { return c.UnitID == unitID })
}

// mapNewWorkers pairs workers added between before and after with unit ids
// the simulation reports that are not yet mapped, both in ascending order.
func mapNewWorkers(ids map[int]int, before, after *game.WorldState, units []game.UnitView, townhallID int) {
	known := make(map[int]bool, len(ids)+1)
	known[townhallID] = true
	for _, sid := range ids {
		known[sid] = true
	}
	var fresh []int
	for _, u := range units {
		if !known[u.ID] {
			fresh = append(fresh, u.ID)
		}
	}
	slices.Sort(fresh)

	for _, pid := range after.WorkerIDs() {
		if _, ok := before.Workers[pid]; ok {
			continue
		}
		if len(fresh) == 0 {
			return
		}
		ids[pid] = fresh[0]
		fresh = fresh[1:]
	}
}
