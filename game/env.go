package game

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

const (
	// BuildGoldCost is the price of a new peasant at the townhall.
	BuildGoldCost = 400
	// CarryCapacity is the most a worker picks up in one harvest.
	CarryCapacity = 100
)

// Weights tunes the heuristic. Workforce is negative so a bigger workforce
// lowers the estimate.
type Weights struct {
	ResourcesLeft float64 `json:"resources_left" yaml:"resources_left"`
	Capacity      float64 `json:"capacity" yaml:"capacity"`
	Workforce     float64 `json:"workforce" yaml:"workforce"`
}

// UnmarshalJSON fills only the weights present in b; the rest keep their
// default values.
func (w *Weights) UnmarshalJSON(b []byte) error {
	type plain Weights
	v := plain(DefaultWeights())
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*w = Weights(v)
	return nil
}

// UnmarshalYAML is UnmarshalJSON for scenario files.
func (w *Weights) UnmarshalYAML(node *yaml.Node) error {
	type plain Weights
	v := plain(DefaultWeights())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*w = Weights(v)
	return nil
}

// DefaultWeights are the tuned values the planner ships with.
func DefaultWeights() Weights {
	return Weights{
		ResourcesLeft: 2.0,
		Capacity:      0.5,
		Workforce:     -10000.0,
	}
}

// Options controls how a root state is built. Weights are used as given, so
// the zero value turns the heuristic off.
type Options struct {
	Weights Weights
	// GroupActions enables the multi-worker action variants during
	// successor generation.
	GroupActions bool
}

// DefaultOptions returns single-worker generation with the default weights.
func DefaultOptions() Options {
	return Options{Weights: DefaultWeights()}
}

// Env is the per-episode data every state derived from one root shares.
// Nothing in it changes during a search.
type Env struct {
	TownhallID       int
	Townhall         Position
	WorkerTemplateID int
	RequiredGold     int
	RequiredWood     int
	Weights          Weights
	GroupActions     bool
}

// Required returns the goal amount for a resource kind.
func (e *Env) Required(kind ResourceKind) int {
	if kind == Gold {
		return e.RequiredGold
	}
	return e.RequiredWood
}
