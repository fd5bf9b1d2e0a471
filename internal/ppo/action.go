package ppo

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidAction     = errors.New("invalid action")
)

type ActionKind string

const (
	ActionContinuous ActionKind = "continuous"
	ActionDiscrete   ActionKind = "discrete"
)

// ActionSpec describes the action space. Continuous actions have Size
// dimensions; discrete actions have one branch per entry of Branches, each
// holding that many choices.
type ActionSpec struct {
	Kind     ActionKind
	Size     int
	Branches []int
}

func ContinuousActions(size int) ActionSpec {
	return ActionSpec{Kind: ActionContinuous, Size: size}
}

func DiscreteActions(branches ...int) ActionSpec {
	return ActionSpec{Kind: ActionDiscrete, Size: len(branches), Branches: append([]int(nil), branches...)}
}

func (s ActionSpec) Validate() error {
	switch s.Kind {
	case ActionContinuous:
		if s.Size <= 0 {
			return fmt.Errorf("continuous action size must be > 0, got %d", s.Size)
		}
	case ActionDiscrete:
		if len(s.Branches) == 0 {
			return errors.New("discrete actions require at least one branch")
		}
		if s.Size != len(s.Branches) {
			return fmt.Errorf("%w: size=%d branches=%d", ErrDimensionMismatch, s.Size, len(s.Branches))
		}
		for i, n := range s.Branches {
			if n < 2 {
				return fmt.Errorf("branch %d needs at least 2 choices, got %d", i, n)
			}
		}
	default:
		return fmt.Errorf("unsupported action kind: %q", s.Kind)
	}
	return nil
}

// outputSize is the width of the actor head.
func (s ActionSpec) outputSize() int {
	if s.Kind == ActionContinuous {
		return s.Size
	}
	total := 0
	for _, n := range s.Branches {
		total += n
	}
	return total
}

func (s ActionSpec) checkAction(action []float64) error {
	if len(action) != s.Size {
		return fmt.Errorf("%w: action size=%d got=%d", ErrDimensionMismatch, s.Size, len(action))
	}
	if s.Kind == ActionDiscrete {
		for b, a := range action {
			if a != math.Trunc(a) || a < 0 || int(a) >= s.Branches[b] {
				return fmt.Errorf("%w: branch %d choice %v", ErrInvalidAction, b, a)
			}
		}
	}
	return nil
}
