package game

import "fmt"

// ResourceKind distinguishes gold mines from trees.
type ResourceKind uint8

const (
	Gold ResourceKind = iota
	Wood
)

func (k ResourceKind) String() string {
	switch k {
	case Gold:
		return "gold"
	case Wood:
		return "wood"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText lets snapshots and scenario files spell kinds as "gold"/"wood".
func (k ResourceKind) MarshalText() ([]byte, error) {
	if k != Gold && k != Wood {
		return nil, fmt.Errorf("unknown resource kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ResourceKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "gold", "GOLD_MINE", "gold_mine":
		*k = Gold
	case "wood", "TREE", "tree":
		*k = Wood
	default:
		return fmt.Errorf("unknown resource kind %q", string(b))
	}
	return nil
}

// Resource is a harvestable node. Amount only ever goes down.
type Resource struct {
	ID       int
	Kind     ResourceKind
	Amount   int
	Position Position
}

// Collect removes up to limit units and returns how many were taken.
func (r *Resource) Collect(limit int) int {
	n := min(r.Amount, limit)
	if n < 0 {
		n = 0
	}
	r.Amount -= n
	return n
}

func (r Resource) String() string {
	return fmt.Sprintf("%s#%d@%s[%d]", r.Kind, r.ID, r.Position, r.Amount)
}
