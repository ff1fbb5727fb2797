package access

import "fmt"

// Level is the effective access a user holds on a resource. Levels form a
// total order: None < RO < RW < Admin.
type Level int

const (
	LevelNone Level = iota
	LevelRO
	LevelRW
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelRO:
		return "ro"
	case LevelRW:
		return "rw"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "ro":
		return LevelRO, nil
	case "rw":
		return LevelRW, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return LevelNone, fmt.Errorf("unknown access level: %q", s)
	}
}

// AtLeast reports whether l grants at least the given level.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// Cap returns the lower of l and ceiling.
func (l Level) Cap(ceiling Level) Level {
	if l > ceiling {
		return ceiling
	}
	return l
}

// Propagation records why a permission row exists. It determines which
// operations may later delete the row: a membership removal strips
// area_membership and its inherited descendants but never touches direct
// grants.
type Propagation string

const (
	PropagationDirect         Propagation = "direct"
	PropagationInherited      Propagation = "inherited"
	PropagationAreaMembership Propagation = "area_membership"
	PropagationAssignment     Propagation = "assignment"
)

func ParsePropagation(s string) (Propagation, error) {
	switch Propagation(s) {
	case PropagationDirect, PropagationInherited, PropagationAreaMembership, PropagationAssignment:
		return Propagation(s), nil
	default:
		return "", fmt.Errorf("unknown propagation: %q", s)
	}
}
