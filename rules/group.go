package rules

import (
	"fmt"

	"github.com/erikjearl/SEPIA-Environments/game"
)

// GroupMove moves several workers standing on the same tile together. They
// travel side by side, so the distance is paid once.
type GroupMove struct {
	IDs  []int
	From game.Position
	To   game.Position
}

func (m GroupMove) Kind() game.ActionKind { return game.ActionGroupMove }
func (m GroupMove) Workers() []int        { return m.IDs }
func (m GroupMove) Cost() float64         { return game.Distance(m.From, m.To) }

func (m GroupMove) PreconditionsMet(s *game.WorldState) bool {
	if len(m.IDs) == 0 || m.From == m.To {
		return false
	}
	for _, id := range m.IDs {
		w, ok := s.Workers[id]
		if !ok || w.Position != m.From {
			return false
		}
	}
	return true
}

func (m GroupMove) Apply(s *game.WorldState) {
	s.Record(m)
	for _, id := range m.IDs {
		s.Workers[id].Position = m.To
	}
}

func (m GroupMove) String() string {
	return fmt.Sprintf("GroupMove(workers=%v %s->%s)", m.IDs, m.From, m.To)
}

// GroupHarvest has every listed worker harvest the same resource in id order.
// The resource must hold enough that the last worker still gets something.
type GroupHarvest struct {
	IDs      []int
	Resource int
	At       game.Position
}

func (h GroupHarvest) Kind() game.ActionKind { return game.ActionGroupHarvest }
func (h GroupHarvest) Workers() []int        { return h.IDs }
func (h GroupHarvest) Cost() float64         { return 0 }

func (h GroupHarvest) PreconditionsMet(s *game.WorldState) bool {
	r, ok := s.Resources[h.Resource]
	if !ok || len(h.IDs) == 0 || r.Amount <= (len(h.IDs)-1)*game.CarryCapacity {
		return false
	}
	for _, id := range h.IDs {
		w, ok := s.Workers[id]
		if !ok || w.Carrying() || w.Position != r.Position {
			return false
		}
	}
	return true
}

func (h GroupHarvest) Apply(s *game.WorldState) {
	s.Record(h)
	r := s.Resources[h.Resource]
	for _, id := range h.IDs {
		s.Workers[id].Load(r.Kind, r.Collect(game.CarryCapacity))
	}
}

func (h GroupHarvest) String() string {
	return fmt.Sprintf("GroupHarvest(workers=%v resource=%d@%s)", h.IDs, h.Resource, h.At)
}

// GroupDeposit banks the loads of several workers at the townhall.
type GroupDeposit struct {
	IDs      []int
	Townhall game.Position
}

func (d GroupDeposit) Kind() game.ActionKind { return game.ActionGroupDeposit }
func (d GroupDeposit) Workers() []int        { return d.IDs }
func (d GroupDeposit) Cost() float64         { return 0 }

func (d GroupDeposit) PreconditionsMet(s *game.WorldState) bool {
	if len(d.IDs) == 0 {
		return false
	}
	for _, id := range d.IDs {
		w, ok := s.Workers[id]
		if !ok || !w.Carrying() || w.Position != s.Env.Townhall {
			return false
		}
	}
	return true
}

func (d GroupDeposit) Apply(s *game.WorldState) {
	s.Record(d)
	for _, id := range d.IDs {
		s.Bank(s.Workers[id].Unload())
	}
}

func (d GroupDeposit) String() string {
	return fmt.Sprintf("GroupDeposit(workers=%v townhall=%s)", d.IDs, d.Townhall)
}
