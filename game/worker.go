package game

import "fmt"

// Worker is a peasant unit as the planner sees it.
type Worker struct {
	ID       int
	Position Position
	Gold     int
	Wood     int
}

// Carrying reports whether the worker holds anything.
func (w *Worker) Carrying() bool {
	return w.Gold != 0 || w.Wood != 0
}

// Carried returns the combined load.
func (w *Worker) Carried() int {
	return w.Gold + w.Wood
}

// Load adds n units of the given kind to the worker's hands.
func (w *Worker) Load(kind ResourceKind, n int) {
	switch kind {
	case Gold:
		w.Gold += n
	case Wood:
		w.Wood += n
	}
}

// Unload empties the worker and returns what it was carrying.
func (w *Worker) Unload() (gold, wood int) {
	gold, wood = w.Gold, w.Wood
	w.Gold, w.Wood = 0, 0
	return gold, wood
}

func (w Worker) String() string {
	return fmt.Sprintf("worker#%d@%s[g=%d w=%d]", w.ID, w.Position, w.Gold, w.Wood)
}
