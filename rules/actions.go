package rules

import (
	"fmt"

	"github.com/erikjearl/SEPIA-Environments/game"
)

// Move sends one worker to a target tile. From is the worker's position in
// the state the action was generated from and fixes the move's cost.
type Move struct {
	Worker int
	From   game.Position
	To     game.Position
}

func (m Move) Kind() game.ActionKind { return game.ActionMove }
func (m Move) Workers() []int        { return []int{m.Worker} }
func (m Move) Cost() float64         { return game.Distance(m.From, m.To) }

func (m Move) PreconditionsMet(s *game.WorldState) bool {
	w, ok := s.Workers[m.Worker]
	return ok && w.Position != m.To
}

func (m Move) Apply(s *game.WorldState) {
	s.Record(m)
	s.Workers[m.Worker].Position = m.To
}

func (m Move) String() string {
	return fmt.Sprintf("Move(worker=%d %s->%s)", m.Worker, m.From, m.To)
}

// Harvest fills an empty-handed worker from the resource it stands on.
type Harvest struct {
	Worker   int
	Resource int
	At       game.Position
}

func (h Harvest) Kind() game.ActionKind { return game.ActionHarvest }
func (h Harvest) Workers() []int        { return []int{h.Worker} }
func (h Harvest) Cost() float64         { return 0 }

func (h Harvest) PreconditionsMet(s *game.WorldState) bool {
	r, ok := s.Resources[h.Resource]
	if !ok || r.Amount <= 0 {
		return false
	}
	w, ok := s.Workers[h.Worker]
	return ok && !w.Carrying() && w.Position == r.Position
}

func (h Harvest) Apply(s *game.WorldState) {
	s.Record(h)
	r := s.Resources[h.Resource]
	s.Workers[h.Worker].Load(r.Kind, r.Collect(game.CarryCapacity))
}

func (h Harvest) String() string {
	return fmt.Sprintf("Harvest(worker=%d resource=%d@%s)", h.Worker, h.Resource, h.At)
}

// Deposit banks everything a worker carries at the townhall.
type Deposit struct {
	Worker   int
	Townhall game.Position
}

func (d Deposit) Kind() game.ActionKind { return game.ActionDeposit }
func (d Deposit) Workers() []int        { return []int{d.Worker} }
func (d Deposit) Cost() float64         { return 0 }

func (d Deposit) PreconditionsMet(s *game.WorldState) bool {
	w, ok := s.Workers[d.Worker]
	return ok && w.Carrying() && w.Position == s.Env.Townhall
}

func (d Deposit) Apply(s *game.WorldState) {
	s.Record(d)
	s.Bank(s.Workers[d.Worker].Unload())
}

func (d Deposit) String() string {
	return fmt.Sprintf("Deposit(worker=%d townhall=%s)", d.Worker, d.Townhall)
}

// BuildWorker trains a peasant at the townhall for BuildGoldCost gold and one
// unit of food.
type BuildWorker struct {
	Townhall int
	Template int
}

func (b BuildWorker) Kind() game.ActionKind { return game.ActionBuildWorker }
func (b BuildWorker) Workers() []int        { return nil }
func (b BuildWorker) Cost() float64         { return 0 }

func (b BuildWorker) PreconditionsMet(s *game.WorldState) bool {
	return s.Gold >= game.BuildGoldCost && s.Food > 0
}

func (b BuildWorker) Apply(s *game.WorldState) {
	s.Record(b)
	s.Gold -= game.BuildGoldCost
	s.Food--
	s.SpawnWorker()
}

func (b BuildWorker) String() string {
	return fmt.Sprintf("BuildWorker(townhall=%d template=%d)", b.Townhall, b.Template)
}
