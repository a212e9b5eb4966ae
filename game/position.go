package game

import (
	"fmt"
	"math"
)

// Position is a tile coordinate. Coordinates follow SEPIA conventions:
// (0,0) is top-left and y grows downward.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Distance is the straight-line distance between two positions. The planner
// does no obstacle avoidance, so this is also the cost of a move.
func Distance(a, b Position) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns the offset from o to p.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
