// Package game defines the planning world: positions, resources, workers and
// the WorldState search node.
//
// A WorldState is designed to be cheaply clonable for best-first expansion.
// Workers and resources are deep-copied on every clone so sibling branches
// never see each other's harvests; the Env is shared read-only.
package game

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ActionKind tags the closed family of planner actions.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionHarvest
	ActionDeposit
	ActionBuildWorker
	ActionGroupMove
	ActionGroupHarvest
	ActionGroupDeposit
)

var actionKindNames = [...]string{
	ActionMove:         "move",
	ActionHarvest:      "harvest",
	ActionDeposit:      "deposit",
	ActionBuildWorker:  "build_worker",
	ActionGroupMove:    "group_move",
	ActionGroupHarvest: "group_harvest",
	ActionGroupDeposit: "group_deposit",
}

func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return "action(" + strconv.Itoa(int(k)) + ")"
}

// Action is a STRIPS-style operation: a precondition test and an effect.
//
// Apply mutates the state it is given, which must be a fresh clone, and
// records itself on that state's plan. Callers check PreconditionsMet first;
// Apply does not.
type Action interface {
	Kind() ActionKind
	PreconditionsMet(s *WorldState) bool
	Apply(s *WorldState)
	Cost() float64
	// Workers lists the worker ids the action drives, in execution order.
	Workers() []int
	String() string
}

// StateKey identifies a WorldState by its physical configuration only.
type StateKey string

// WorldState is a node in the planning search.
type WorldState struct {
	Env *Env

	Gold int
	Wood int
	// Food is the remaining population headroom.
	Food int

	Workers      map[int]*Worker
	Resources    map[int]*Resource
	NextWorkerID int

	Cost float64
	Plan []Action
}

// NewWorldState builds the root search node from a simulation snapshot.
func NewWorldState(snap Snapshot, opts Options) (*WorldState, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	env := &Env{
		TownhallID:       snap.Townhall.ID,
		Townhall:         snap.Townhall.Position(),
		WorkerTemplateID: snap.WorkerTemplateID,
		RequiredGold:     snap.RequiredGold,
		RequiredWood:     snap.RequiredWood,
		Weights:          opts.Weights,
		GroupActions:     opts.GroupActions,
	}

	s := &WorldState{
		Env:       env,
		Food:      snap.PopulationHeadroom,
		Workers:   make(map[int]*Worker, len(snap.Workers)),
		Resources: make(map[int]*Resource, len(snap.Resources)),
	}

	maxID := snap.Townhall.ID
	for _, u := range snap.Workers {
		s.Workers[u.ID] = &Worker{ID: u.ID, Position: u.Position()}
		maxID = max(maxID, u.ID)
	}
	s.NextWorkerID = maxID + 1

	for _, r := range snap.Resources {
		s.Resources[r.ID] = &Resource{
			ID:       r.ID,
			Kind:     r.Kind,
			Amount:   r.Amount,
			Position: r.Position(),
		}
	}
	return s, nil
}

// Clone performs a deep copy of everything a single action may change.
func (s *WorldState) Clone() *WorldState {
	if s == nil {
		return nil
	}

	out := &WorldState{
		Env:          s.Env,
		Gold:         s.Gold,
		Wood:         s.Wood,
		Food:         s.Food,
		Workers:      make(map[int]*Worker, len(s.Workers)+1),
		Resources:    make(map[int]*Resource, len(s.Resources)),
		NextWorkerID: s.NextWorkerID,
		Cost:         s.Cost,
	}
	for id, w := range s.Workers {
		cp := *w
		out.Workers[id] = &cp
	}
	for id, r := range s.Resources {
		cp := *r
		out.Resources[id] = &cp
	}
	if len(s.Plan) > 0 {
		out.Plan = make([]Action, len(s.Plan), len(s.Plan)+1)
		copy(out.Plan, s.Plan)
	}
	return out
}

// Record appends an applied action to the plan and pays its cost.
func (s *WorldState) Record(a Action) {
	s.Cost += a.Cost()
	s.Plan = append(s.Plan, a)
}

// PlanCopy returns the actions taken to reach this state, first to last.
func (s *WorldState) PlanCopy() []Action {
	return slices.Clone(s.Plan)
}

// IsGoal reports whether the stockpiles hit the requirements exactly.
// Overshooting a requirement is not a goal.
func (s *WorldState) IsGoal() bool {
	return s.Gold == s.Env.RequiredGold && s.Wood == s.Env.RequiredWood
}

// Stock returns the banked amount of a kind.
func (s *WorldState) Stock(kind ResourceKind) int {
	if kind == Gold {
		return s.Gold
	}
	return s.Wood
}

// Needs reports whether more of a kind still has to be banked.
func (s *WorldState) Needs(kind ResourceKind) bool {
	return s.Stock(kind) < s.Env.Required(kind)
}

// Bank adds deposited amounts to the stockpiles.
func (s *WorldState) Bank(gold, wood int) {
	s.Gold += gold
	s.Wood += wood
}

// SpawnWorker trains a new peasant at the townhall.
func (s *WorldState) SpawnWorker() *Worker {
	w := &Worker{ID: s.NextWorkerID, Position: s.Env.Townhall}
	s.Workers[w.ID] = w
	s.NextWorkerID++
	return w
}

// WorkerIDs returns worker ids in ascending order.
func (s *WorldState) WorkerIDs() []int {
	ids := make([]int, 0, len(s.Workers))
	for id := range s.Workers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResourceIDs returns resource ids in ascending order.
func (s *WorldState) ResourceIDs() []int {
	ids := make([]int, 0, len(s.Resources))
	for id := range s.Resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Heuristic estimates remaining cost. It is a search priority, not a
// certified lower bound: the workforce term can drive it far below zero.
func (s *WorldState) Heuristic() float64 {
	w := s.Env.Weights
	goldLeft := float64(s.Env.RequiredGold-s.Gold) * w.ResourcesLeft
	woodLeft := float64(s.Env.RequiredWood-s.Wood) * w.ResourcesLeft

	headroom := 0
	for _, wk := range s.Workers {
		headroom += CarryCapacity - wk.Carried()
	}
	capacity := float64(headroom) * w.Capacity
	workforce := float64(len(s.Workers)) * w.Workforce

	return goldLeft + woodLeft + capacity + workforce
}

// Priority is the best-first ordering value, cost so far plus estimate.
func (s *WorldState) Priority() float64 {
	return s.Cost + s.Heuristic()
}

// Key encodes the physical state: stockpiles, food, workers and resource
// stock. Cost, plan and heuristic are excluded.
func (s *WorldState) Key() StateKey {
	b := make([]byte, 0, 32+24*len(s.Workers)+12*len(s.Resources))
	b = strconv.AppendInt(b, int64(s.Gold), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(s.Wood), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(s.Food), 10)
	b = append(b, '|')
	for _, id := range s.WorkerIDs() {
		w := s.Workers[id]
		b = strconv.AppendInt(b, int64(id), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(w.Position.X), 10)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(w.Position.Y), 10)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(w.Gold), 10)
		b = append(b, ',')
		b = strconv.AppendInt(b, int64(w.Wood), 10)
		b = append(b, ';')
	}
	b = append(b, '|')
	for _, id := range s.ResourceIDs() {
		b = strconv.AppendInt(b, int64(id), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(s.Resources[id].Amount), 10)
		b = append(b, ';')
	}
	return StateKey(b)
}

// Equal compares physical state only.
func (s *WorldState) Equal(o *WorldState) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	return s.Key() == o.Key()
}

// Validate checks the invariants every reachable state must satisfy.
func (s *WorldState) Validate() error {
	if s.Gold < 0 || s.Wood < 0 {
		return fmt.Errorf("negative stockpile gold=%d wood=%d", s.Gold, s.Wood)
	}
	if s.Food < 0 {
		return fmt.Errorf("negative food %d", s.Food)
	}
	if s.Cost < 0 {
		return fmt.Errorf("negative cost %f", s.Cost)
	}
	for _, id := range s.ResourceIDs() {
		if r := s.Resources[id]; r.Amount < 0 {
			return fmt.Errorf("resource %d has negative amount %d", id, r.Amount)
		}
	}
	for _, id := range s.WorkerIDs() {
		w := s.Workers[id]
		if w.Gold < 0 || w.Wood < 0 || w.Gold > CarryCapacity || w.Wood > CarryCapacity {
			return fmt.Errorf("worker %d carries gold=%d wood=%d", id, w.Gold, w.Wood)
		}
	}
	return nil
}

func (s *WorldState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gold=%d/%d wood=%d/%d food=%d cost=%.2f plan=%d",
		s.Gold, s.Env.RequiredGold, s.Wood, s.Env.RequiredWood, s.Food, s.Cost, len(s.Plan))
	for _, id := range s.WorkerIDs() {
		b.WriteString(" ")
		b.WriteString(s.Workers[id].String())
	}
	return b.String()
}
