package game

import (
	"errors"
	"fmt"
)

// ErrInvalidSnapshot is returned when a snapshot cannot seed a search.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// UnitView is a unit as observed in the live simulation.
type UnitView struct {
	ID int `json:"id" yaml:"id"`
	X  int `json:"x" yaml:"x"`
	Y  int `json:"y" yaml:"y"`
}

func (u UnitView) Position() Position { return Position{X: u.X, Y: u.Y} }

// ResourceView is a resource node as observed in the live simulation.
type ResourceView struct {
	ID     int          `json:"id" yaml:"id"`
	Kind   ResourceKind `json:"kind" yaml:"kind"`
	X      int          `json:"x" yaml:"x"`
	Y      int          `json:"y" yaml:"y"`
	Amount int          `json:"amount" yaml:"amount"`
}

func (r ResourceView) Position() Position { return Position{X: r.X, Y: r.Y} }

// Snapshot is everything the planner reads from the simulation, once, before
// searching. Map dimensions are deliberately absent: moves are straight lines.
type Snapshot struct {
	Townhall           UnitView       `json:"townhall" yaml:"townhall"`
	Workers            []UnitView     `json:"workers" yaml:"workers"`
	Resources          []ResourceView `json:"resources" yaml:"resources"`
	PopulationHeadroom int            `json:"population_headroom" yaml:"population_headroom"`
	WorkerTemplateID   int            `json:"worker_template_id" yaml:"worker_template_id"`
	RequiredGold       int            `json:"required_gold" yaml:"required_gold"`
	RequiredWood       int            `json:"required_wood" yaml:"required_wood"`
}

// Validate reports the first structural problem in the snapshot.
func (s *Snapshot) Validate() error {
	if s.RequiredGold < 0 || s.RequiredWood < 0 {
		return fmt.Errorf("%w: negative goal gold=%d wood=%d", ErrInvalidSnapshot, s.RequiredGold, s.RequiredWood)
	}
	if s.PopulationHeadroom < 0 {
		return fmt.Errorf("%w: negative population headroom %d", ErrInvalidSnapshot, s.PopulationHeadroom)
	}
	units := map[int]bool{s.Townhall.ID: true}
	for _, w := range s.Workers {
		if units[w.ID] {
			return fmt.Errorf("%w: duplicate unit id %d", ErrInvalidSnapshot, w.ID)
		}
		units[w.ID] = true
	}
	resources := make(map[int]bool, len(s.Resources))
	for _, r := range s.Resources {
		if resources[r.ID] {
			return fmt.Errorf("%w: duplicate resource id %d", ErrInvalidSnapshot, r.ID)
		}
		resources[r.ID] = true
		if r.Amount < 0 {
			return fmt.Errorf("%w: resource %d has negative amount %d", ErrInvalidSnapshot, r.ID, r.Amount)
		}
		if r.Kind != Gold && r.Kind != Wood {
			return fmt.Errorf("%w: resource %d has unknown kind %d", ErrInvalidSnapshot, r.ID, r.Kind)
		}
	}
	return nil
}

// TotalAvailable sums the stock of one kind across the map.
func (s *Snapshot) TotalAvailable(kind ResourceKind) int {
	total := 0
	for _, r := range s.Resources {
		if r.Kind == kind {
			total += r.Amount
		}
	}
	return total
}
