package scape

import (
	"math"
	"math/rand"

	"gamelearn/internal/agent"
)

const (
	CartPoleLiteName  = "cart-pole-lite"
	cartPoleLiteSteps = 60
	cartPoleLiteLimit = 2.0
)

var cartPoleLiteStarts = []float64{-0.8, -0.4, 0.0, 0.4, 0.8}

// CartPoleLite is a simplified 1D balancing task: a damped cart is pushed by
// a bounded force and rewarded for staying near the origin.
type CartPoleLite struct {
	x    float64
	v    float64
	next int
}

func NewCartPoleLite() *CartPoleLite {
	return &CartPoleLite{x: cartPoleLiteStarts[0]}
}

func (c *CartPoleLite) Name() string {
	return CartPoleLiteName
}

func (c *CartPoleLite) Spec() agent.Spec {
	return agent.Spec{ObservationSize: 2, ActionSize: 1}
}

func (c *CartPoleLite) CollectObservations() []float64 {
	return []float64{c.x, c.v}
}

func (c *CartPoleLite) OnActionReceived(action []float64) agent.Feedback {
	var reward float64
	c.x, c.v, reward = cartPoleLiteStep(c.x, c.v, action[0])
	return agent.Feedback{Reward: reward, Done: math.Abs(c.x) > cartPoleLiteLimit}
}

// Heuristic is a hand-tuned PD controller.
func (c *CartPoleLite) Heuristic() []float64 {
	return []float64{-1.2*c.x - 0.6*c.v}
}

func (c *CartPoleLite) Reset(scope agent.ResetScope, rng *rand.Rand) {
	if scope == agent.ResetNone {
		return
	}
	if rng != nil {
		c.x = rng.Float64()*1.6 - 0.8
	} else {
		c.x = cartPoleLiteStarts[c.next%len(cartPoleLiteStarts)]
		c.next++
	}
	c.v = 0
}

func cartPoleLiteStep(x, v, force float64) (nextX, nextV, reward float64) {
	const (
		dt       = 0.1
		kPos     = 0.45
		kVel     = 0.15
		forceK   = 1.25
		maxForce = 1.0
	)
	if math.IsNaN(force) {
		force = 0
	}
	if force > maxForce {
		force = maxForce
	}
	if force < -maxForce {
		force = -maxForce
	}

	acc := forceK*force - kPos*x - kVel*v
	v = v + acc*dt
	x = x + v*dt
	reward = 1.0 - math.Min(1.0, math.Abs(x)/cartPoleLiteLimit)
	return x, v, reward
}
