// Package scenario loads planning problems from YAML files.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/search"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a snapshot plus the knobs for planning it.
type Scenario struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	game.Snapshot `yaml:",inline"`
	Planner       Planner `yaml:"planner"`
}

// Planner tunes one search.
type Planner struct {
	MaxExpansions int           `yaml:"max_expansions"`
	Timeout       time.Duration `yaml:"timeout"`
	GroupActions  bool          `yaml:"group_actions"`
	Weights       *game.Weights `yaml:"weights"`
}

// Load reads and validates a scenario file.
func Load(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	sc, err := Parse(raw)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates scenario YAML.
func Parse(raw []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate checks the snapshot and planner settings.
func (sc *Scenario) Validate() error {
	if err := sc.Snapshot.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if len(sc.Workers) == 0 {
		return fmt.Errorf("%w: no workers", ErrInvalidScenario)
	}
	if sc.Planner.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidScenario, sc.Planner.Timeout)
	}
	return nil
}

// Shortfall reports how much of each goal the map cannot supply at all. A
// non-zero shortfall means the planner will report the goal unreachable.
func (sc *Scenario) Shortfall() (gold, wood int) {
	gold = max(0, sc.RequiredGold-sc.TotalAvailable(game.Gold))
	wood = max(0, sc.RequiredWood-sc.TotalAvailable(game.Wood))
	return gold, wood
}

// GameOptions returns the root-state options this scenario asks for.
func (sc *Scenario) GameOptions() game.Options {
	opts := game.DefaultOptions()
	opts.GroupActions = sc.Planner.GroupActions
	if sc.Planner.Weights != nil {
		opts.Weights = *sc.Planner.Weights
	}
	return opts
}

// SearchOptions returns planner options; callers add logging and progress.
func (sc *Scenario) SearchOptions() search.Options {
	opts := search.DefaultOptions()
	if sc.Planner.MaxExpansions != 0 {
		opts.MaxExpansions = sc.Planner.MaxExpansions
	}
	return opts
}

// Root builds the initial search state.
func (sc *Scenario) Root() (*game.WorldState, error) {
	return game.NewWorldState(sc.Snapshot, sc.GameOptions())
}
