// Package rules holds the planner's action family and the transition
// function over game.WorldState.
package rules

import (
	"errors"
	"fmt"

	"github.com/erikjearl/SEPIA-Environments/game"
)

// ErrPreconditionFailed is returned by the checked helpers when an action is
// not applicable to the state it was given.
var ErrPreconditionFailed = errors.New("action preconditions not met")

// Successors returns every action applicable to s, in generation order:
// BuildWorker first, then per worker in ascending id order, then group
// variants when the episode enables them.
func Successors(s *game.WorldState) []game.Action {
	var actions []game.Action
	add := func(a game.Action) {
		if a.PreconditionsMet(s) {
			actions = append(actions, a)
		}
	}

	add(BuildWorker{Townhall: s.Env.TownhallID, Template: s.Env.WorkerTemplateID})

	for _, id := range s.WorkerIDs() {
		for _, a := range workerActions(s, s.Workers[id]) {
			add(a)
		}
	}

	if s.Env.GroupActions {
		for _, a := range groupActions(s) {
			add(a)
		}
	}
	return actions
}

// Children expands s into one fresh clone per applicable action. Siblings
// share nothing mutable.
func Children(s *game.WorldState) []*game.WorldState {
	actions := Successors(s)
	children := make([]*game.WorldState, 0, len(actions))
	for _, a := range actions {
		child := s.Clone()
		a.Apply(child)
		children = append(children, child)
	}
	return children
}

// workerActions branches on what a single worker can usefully do next.
func workerActions(s *game.WorldState, w *game.Worker) []game.Action {
	townhall := s.Env.Townhall

	if w.Carrying() {
		if w.Position == townhall {
			return []game.Action{Deposit{Worker: w.ID, Townhall: townhall}}
		}
		return []game.Action{Move{Worker: w.ID, From: w.Position, To: townhall}}
	}

	if r := harvestableAt(s, w.Position); r != nil {
		return []game.Action{Harvest{Worker: w.ID, Resource: r.ID, At: r.Position}}
	}

	var actions []game.Action
	for _, rid := range s.ResourceIDs() {
		r := s.Resources[rid]
		if r.Amount > 0 && s.Needs(r.Kind) && r.Position != w.Position {
			actions = append(actions, Move{Worker: w.ID, From: w.Position, To: r.Position})
		}
	}
	return actions
}

// harvestableAt finds a resource on p that still has stock of a kind the
// goal still needs. Harvesting anything else can only overshoot.
func harvestableAt(s *game.WorldState, p game.Position) *game.Resource {
	for _, rid := range s.ResourceIDs() {
		r := s.Resources[rid]
		if r.Position == p && r.Amount > 0 && s.Needs(r.Kind) {
			return r
		}
	}
	return nil
}

type groupBranch uint8

const (
	branchIdleElsewhere groupBranch = iota
	branchIdleAtResource
	branchCarryAway
	branchCarryAtTownhall
)

type groupKey struct {
	at       game.Position
	branch   groupBranch
	resource int
}

// groupActions buckets workers that share a tile and a branch. Buckets are
// visited in order of their lowest worker id.
func groupActions(s *game.WorldState) []game.Action {
	var order []groupKey
	buckets := make(map[groupKey][]int)

	for _, id := range s.WorkerIDs() {
		w := s.Workers[id]
		k := groupKey{at: w.Position}
		switch {
		case w.Carrying() && w.Position == s.Env.Townhall:
			k.branch = branchCarryAtTownhall
		case w.Carrying():
			k.branch = branchCarryAway
		default:
			if r := harvestableAt(s, w.Position); r != nil {
				k.branch = branchIdleAtResource
				k.resource = r.ID
			} else {
				k.branch = branchIdleElsewhere
			}
		}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], id)
	}

	townhall := s.Env.Townhall
	var actions []game.Action
	for _, k := range order {
		ids := buckets[k]
		if len(ids) < 2 {
			continue
		}
		switch k.branch {
		case branchCarryAtTownhall:
			actions = append(actions, GroupDeposit{IDs: ids, Townhall: townhall})
		case branchCarryAway:
			actions = append(actions, GroupMove{IDs: ids, From: k.at, To: townhall})
		case branchIdleAtResource:
			actions = append(actions, GroupHarvest{IDs: ids, Resource: k.resource, At: k.at})
		case branchIdleElsewhere:
			for _, rid := range s.ResourceIDs() {
				r := s.Resources[rid]
				if r.Amount > 0 && s.Needs(r.Kind) && r.Position != k.at {
					actions = append(actions, GroupMove{IDs: ids, From: k.at, To: r.Position})
				}
			}
		}
	}
	return actions
}

// Apply is the checked form of a single transition: it refuses actions whose
// preconditions fail and leaves s untouched.
func Apply(s *game.WorldState, a game.Action) (*game.WorldState, error) {
	if !a.PreconditionsMet(s) {
		return nil, fmt.Errorf("%w: %s", ErrPreconditionFailed, a)
	}
	next := s.Clone()
	a.Apply(next)
	return next, nil
}

// Replay re-applies a plan from root and returns every intermediate state,
// root first. It fails on the first action that is not applicable or that
// leaves the world inconsistent (negative stock, food or inventories, or a
// resource that grew).
func Replay(root *game.WorldState, plan []game.Action) ([]*game.WorldState, error) {
	trace := make([]*game.WorldState, 0, len(plan)+1)
	trace = append(trace, root)

	cur := root
	for i, a := range plan {
		next, err := Apply(cur, a)
		if err != nil {
			return trace, fmt.Errorf("step %d: %w", i, err)
		}
		if err := next.Validate(); err != nil {
			return trace, fmt.Errorf("step %d %s: %w", i, a, err)
		}
		for id, r := range next.Resources {
			if prev, ok := cur.Resources[id]; ok && r.Amount > prev.Amount {
				return trace, fmt.Errorf("step %d %s: resource %d grew from %d to %d", i, a, id, prev.Amount, r.Amount)
			}
		}
		trace = append(trace, next)
		cur = next
	}
	return trace, nil
}
