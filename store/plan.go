package store

import (
	"encoding/json"
	"fmt"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

// StepState is the JSON payload in PlanStepRow.StateJSON.
type StepState struct {
	Workers   []StepWorker   `json:"workers"`
	Resources []StepResource `json:"resources"`
}

type StepWorker struct {
	ID   int `json:"id"`
	X    int `json:"x"`
	Y    int `json:"y"`
	Gold int `json:"gold,omitempty"`
	Wood int `json:"wood,omitempty"`
}

type StepResource struct {
	ID     int    `json:"id"`
	Kind   string `json:"kind"`
	Amount int    `json:"amount"`
}

// PlanRows replays plan from root and flattens it into archive rows. A plan
// that does not replay cleanly is rejected rather than archived.
func PlanRows(runID, scenario string, root *game.WorldState, plan []game.Action) ([]PlanStepRow, error) {
	trace, err := rules.Replay(root, plan)
	if err != nil {
		return nil, fmt.Errorf("replay plan: %w", err)
	}

	rows := make([]PlanStepRow, 0, len(plan))
	for i, a := range plan {
		after := trace[i+1]

		stateJSON, err := json.Marshal(stepState(after))
		if err != nil {
			return nil, fmt.Errorf("marshal step %d: %w", i, err)
		}

		target, resourceID := actionTarget(a, root.Env)
		ids := a.Workers()
		workerIDs := make([]int32, len(ids))
		for j, id := range ids {
			workerIDs[j] = int32(id)
		}

		rows = append(rows, PlanStepRow{
			RunID:      runID,
			Scenario:   scenario,
			Step:       int32(i),
			Kind:       a.Kind().String(),
			Action:     a.String(),
			WorkerIDs:  workerIDs,
			TargetX:    int32(target.X),
			TargetY:    int32(target.Y),
			ResourceID: int32(resourceID),
			StepCost:   a.Cost(),
			CumCost:    after.Cost,
			Gold:       int32(after.Gold),
			Wood:       int32(after.Wood),
			Food:       int32(after.Food),
			Workers:    int32(len(after.Workers)),
			StateJSON:  stateJSON,
		})
	}
	return rows, nil
}

func actionTarget(a game.Action, env *game.Env) (game.Position, int) {
	switch a := a.(type) {
	case rules.Move:
		return a.To, -1
	case rules.GroupMove:
		return a.To, -1
	case rules.Harvest:
		return a.At, a.Resource
	case rules.GroupHarvest:
		return a.At, a.Resource
	case rules.Deposit:
		return a.Townhall, -1
	case rules.GroupDeposit:
		return a.Townhall, -1
	default:
		return env.Townhall, -1
	}
}

func stepState(s *game.WorldState) StepState {
	out := StepState{
		Workers:   make([]StepWorker, 0, len(s.Workers)),
		Resources: make([]StepResource, 0, len(s.Resources)),
	}
	for _, id := range s.WorkerIDs() {
		w := s.Workers[id]
		out.Workers = append(out.Workers, StepWorker{ID: id, X: w.Position.X, Y: w.Position.Y, Gold: w.Gold, Wood: w.Wood})
	}
	for _, id := range s.ResourceIDs() {
		r := s.Resources[id]
		out.Resources = append(out.Resources, StepResource{ID: id, Kind: r.Kind.String(), Amount: r.Amount})
	}
	return out
}
