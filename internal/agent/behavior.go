package agent

import (
	"fmt"
	"strings"
)

// Spec is the fixed observation and action width of a behavior.
type Spec struct {
	ObservationSize int
	ActionSize      int
}

// Feedback is what the world reports after applying an action.
type Feedback struct {
	Reward float64
	Done   bool
}

// Behavior is the game-side half of an agent.
type Behavior interface {
	Spec() Spec
	CollectObservations() []float64
	OnActionReceived(action []float64) Feedback
	Heuristic() []float64
}

type BehaviorMode int

const (
	Inactive BehaviorMode = iota
	InferenceOnly
	Heuristic
	Learning
	Demonstration
)

var behaviorModeNames = map[BehaviorMode]string{
	Inactive:      "inactive",
	InferenceOnly: "inference",
	Heuristic:     "heuristic",
	Learning:      "learning",
	Demonstration: "demonstration",
}

func (m BehaviorMode) String() string {
	if name, ok := behaviorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseBehaviorMode(s string) (BehaviorMode, error) {
	for mode, name := range behaviorModeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return Inactive, fmt.Errorf("unknown behavior mode: %q", s)
}

// records reports whether the mode writes samples to the buffer.
func (m BehaviorMode) records() bool {
	return m == Learning || m == Demonstration
}

// needsDecider reports whether the mode consults a decider.
func (m BehaviorMode) needsDecider() bool {
	return m == InferenceOnly || m == Learning || m == Demonstration
}

// ResetScope tells the caller what to reset at an episode boundary.
type ResetScope int

// ResetDefault is the zero value. A controller resolves it to ResetAgent, so
// events never carry it.
const (
	ResetDefault ResetScope = iota
	ResetNone
	ResetAgent
	ResetAgentAndEnvironment
)

func (s ResetScope) String() string {
	switch s {
	case ResetDefault:
		return "default"
	case ResetNone:
		return "none"
	case ResetAgent:
		return "agent"
	case ResetAgentAndEnvironment:
		return "agent+environment"
	default:
		return fmt.Sprintf("reset(%d)", int(s))
	}
}
