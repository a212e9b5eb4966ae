package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erikjearl/SEPIA-Environments/game"
)

var (
	// ErrNotAdjacent means a primitive command was requested while the unit
	// is not on one of the eight tiles around its target.
	ErrNotAdjacent = errors.New("unit not adjacent to target")
	// ErrUnknownUnit means the live view has no position for the unit.
	ErrUnknownUnit = errors.New("unit not in live view")
	// ErrUnsupportedAction is returned for actions outside the planner family.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Direction is one of the eight compass neighbours. North is y-1.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = [...]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	for i, name := range directionNames {
		if name == string(b) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}

const noDirection Direction = 255

// directionMatrix is indexed [dy+1][dx+1].
var directionMatrix = [3][3]Direction{
	{NorthWest, North, NorthEast},
	{West, noDirection, East},
	{SouthWest, South, SouthEast},
}

// DirectionTo returns the direction from one tile to a neighbouring tile.
// ok is false when the tiles coincide or are further than one step apart.
func DirectionTo(from, to game.Position) (d Direction, ok bool) {
	delta := to.Sub(from)
	if delta.X < -1 || delta.X > 1 || delta.Y < -1 || delta.Y > 1 {
		return 0, false
	}
	d = directionMatrix[delta.Y+1][delta.X+1]
	return d, d != noDirection
}

// CommandKind enumerates the low-level simulation commands a plan lowers to.
type CommandKind uint8

const (
	CompoundMove CommandKind = iota
	PrimitiveGather
	PrimitiveDeposit
	PrimitiveProduction
)

var commandKindNames = [...]string{"compound_move", "primitive_gather", "primitive_deposit", "primitive_production"}

func (k CommandKind) String() string {
	if int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

func (k CommandKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *CommandKind) UnmarshalText(b []byte) error {
	for i, name := range commandKindNames {
		if name == string(b) {
			*k = CommandKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown command kind %q", b)
}

// Feedback is the simulation's per-unit verdict on the previous turn's
// command.
type Feedback uint8

const (
	Completed Feedback = iota
	Incomplete
	Failed
)

var feedbackNames = [...]string{"completed", "incomplete", "failed"}

func (f Feedback) String() string {
	if int(f) < len(feedbackNames) {
		return feedbackNames[f]
	}
	return fmt.Sprintf("feedback(%d)", uint8(f))
}

func (f Feedback) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Feedback) UnmarshalText(b []byte) error {
	for i, name := range feedbackNames {
		if strings.EqualFold(name, string(b)) {
			*f = Feedback(i)
			return nil
		}
	}
	return fmt.Errorf("unknown feedback %q", b)
}

// Command is one order for one unit on one turn.
//
// X/Y are set for CompoundMove, Direction for gather/deposit and TemplateID
// for production.
type Command struct {
	Kind       CommandKind `json:"kind"`
	UnitID     int         `json:"unit_id"`
	X          int         `json:"x,omitempty"`
	Y          int         `json:"y,omitempty"`
	Direction  Direction   `json:"direction"`
	TemplateID int         `json:"template_id,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case CompoundMove:
		return fmt.Sprintf("%s unit=%d to=(%d,%d)", c.Kind, c.UnitID, c.X, c.Y)
	case PrimitiveGather, PrimitiveDeposit:
		return fmt.Sprintf("%s unit=%d dir=%s", c.Kind, c.UnitID, c.Direction)
	default:
		return fmt.Sprintf("%s unit=%d template=%d", c.Kind, c.UnitID, c.TemplateID)
	}
}

// Translate lowers a planned action to simulation commands. Gather and
// deposit are direction based, so they are computed from where each worker
// actually stands now (live), not where the plan put it.
func Translate(a game.Action, live map[int]game.Position) ([]Command, error) {
	switch a := a.(type) {
	case Move:
		return moveCommands([]int{a.Worker}, a.To, live)
	case GroupMove:
		return moveCommands(a.IDs, a.To, live)
	case Harvest:
		return adjacentCommands(PrimitiveGather, []int{a.Worker}, a.At, live)
	case GroupHarvest:
		return adjacentCommands(PrimitiveGather, a.IDs, a.At, live)
	case Deposit:
		return adjacentCommands(PrimitiveDeposit, []int{a.Worker}, a.Townhall, live)
	case GroupDeposit:
		return adjacentCommands(PrimitiveDeposit, a.IDs, a.Townhall, live)
	case BuildWorker:
		return []Command{{Kind: PrimitiveProduction, UnitID: a.Townhall, TemplateID: a.Template}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAction, a)
	}
}

func moveCommands(ids []int, to game.Position, live map[int]game.Position) ([]Command, error) {
	cmds := make([]Command, 0, len(ids))
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, id)
		}
		cmds = append(cmds, Command{Kind: CompoundMove, UnitID: id, X: to.X, Y: to.Y})
	}
	return cmds, nil
}

func adjacentCommands(kind CommandKind, ids []int, target game.Position, live map[int]game.Position) ([]Command, error) {
	cmds := make([]Command, 0, len(ids))
	for _, id := range ids {
		at, ok := live[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, id)
		}
		dir, ok := DirectionTo(at, target)
		if !ok {
			return nil, fmt.Errorf("%w: unit %d at %s, target %s", ErrNotAdjacent, id, at, target)
		}
		cmds = append(cmds, Command{Kind: kind, UnitID: id, Direction: dir})
	}
	return cmds, nil
}
