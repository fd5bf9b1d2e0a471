package scape

import (
	"math"
	"math/rand"

	"gamelearn/internal/agent"
)

const (
	TargetReachName  = "target-reach"
	targetReachSteps = 40
	targetReachMove  = 0.1
	targetReachSlack = 0.06
	targetReachCost  = 0.01
)

var targetReachTargets = []float64{-0.6, 0.6, -0.3, 0.3}

// TargetReach moves a point on [-1, 1] left or right toward a target. An
// action value >= 0.5 moves right. Every step costs a little; reaching the
// target pays 1 and ends the episode.
type TargetReach struct {
	pos    float64
	target float64
	next   int
}

func NewTargetReach() *TargetReach {
	return &TargetReach{target: targetReachTargets[0]}
}

func (t *TargetReach) Name() string {
	return TargetReachName
}

func (t *TargetReach) Spec() agent.Spec {
	return agent.Spec{ObservationSize: 2, ActionSize: 1}
}

func (t *TargetReach) CollectObservations() []float64 {
	return []float64{t.pos, t.target - t.pos}
}

func (t *TargetReach) OnActionReceived(action []float64) agent.Feedback {
	if action[0] >= 0.5 {
		t.pos += targetReachMove
	} else {
		t.pos -= targetReachMove
	}
	t.pos = math.Max(-1, math.Min(1, t.pos))
	if math.Abs(t.target-t.pos) < targetReachSlack {
		return agent.Feedback{Reward: 1, Done: true}
	}
	return agent.Feedback{Reward: -targetReachCost}
}

func (t *TargetReach) Heuristic() []float64 {
	if t.target > t.pos {
		return []float64{1}
	}
	return []float64{0}
}

func (t *TargetReach) Reset(scope agent.ResetScope, rng *rand.Rand) {
	if scope == agent.ResetNone {
		return
	}
	t.pos = 0
	if rng != nil {
		// keep the target at least a couple of moves away
		t.target = 0.2 + rng.Float64()*0.6
		if rng.Intn(2) == 0 {
			t.target = -t.target
		}
		return
	}
	t.target = targetReachTargets[t.next%len(targetReachTargets)]
	t.next++
}
