package scape

import (
	"math"
	"math/rand"

	"gamelearn/internal/agent"
)

const XORName = "xor"

type xorCase struct {
	in   []float64
	want float64
}

var xorCases = []xorCase{
	{in: []float64{0, 0}, want: 0},
	{in: []float64{0, 1}, want: 1},
	{in: []float64{1, 0}, want: 1},
	{in: []float64{1, 1}, want: 0},
}

// XOR presents the four truth-table rows as one episode. Each answer earns
// 1-|error|, floored at zero.
type XOR struct {
	order  []int
	cursor int
}

func NewXOR() *XOR {
	return &XOR{order: []int{0, 1, 2, 3}}
}

func (x *XOR) Name() string {
	return XORName
}

func (x *XOR) Spec() agent.Spec {
	return agent.Spec{ObservationSize: 2, ActionSize: 1}
}

func (x *XOR) CollectObservations() []float64 {
	return append([]float64(nil), xorCases[x.order[x.cursor]].in...)
}

func (x *XOR) OnActionReceived(action []float64) agent.Feedback {
	want := xorCases[x.order[x.cursor]].want
	out := action[0]
	if math.IsNaN(out) {
		out = math.Inf(1)
	}
	reward := 1 - math.Min(1, math.Abs(out-want))
	x.cursor++
	done := x.cursor >= len(x.order)
	if done {
		x.cursor = 0
	}
	return agent.Feedback{Reward: reward, Done: done}
}

func (x *XOR) Heuristic() []float64 {
	return []float64{xorCases[x.order[x.cursor]].want}
}

// Reset rewinds to the first row. A non-nil rng shuffles the row order.
func (x *XOR) Reset(scope agent.ResetScope, rng *rand.Rand) {
	if scope == agent.ResetNone {
		return
	}
	x.cursor = 0
	if rng != nil {
		rng.Shuffle(len(x.order), func(i, j int) { x.order[i], x.order[j] = x.order[j], x.order[i] })
	} else {
		x.order = []int{0, 1, 2, 3}
	}
}
