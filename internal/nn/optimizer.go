package nn

import "math"

// Optimizer updates params in place from grads. slot identifies a parameter
// block so stateful optimizers can keep moments per block.
type Optimizer interface {
	Step(slot int, params, grads []float64)
}

type SGD struct {
	LearningRate float64
}

func (o *SGD) Step(_ int, params, grads []float64) {
	for i := range params {
		params[i] -= o.LearningRate * grads[i]
	}
}

type adamSlot struct {
	m []float64
	v []float64
	t int
}

type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	slots map[int]*adamSlot
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

func (o *Adam) Step(slot int, params, grads []float64) {
	if o.slots == nil {
		o.slots = make(map[int]*adamSlot)
	}
	state, ok := o.slots[slot]
	if !ok || len(state.m) != len(params) {
		state = &adamSlot{m: make([]float64, len(params)), v: make([]float64, len(params))}
		o.slots[slot] = state
	}
	state.t++
	c1 := 1 - math.Pow(o.Beta1, float64(state.t))
	c2 := 1 - math.Pow(o.Beta2, float64(state.t))
	for i := range params {
		g := grads[i]
		state.m[i] = o.Beta1*state.m[i] + (1-o.Beta1)*g
		state.v[i] = o.Beta2*state.v[i] + (1-o.Beta2)*g*g
		mHat := state.m[i] / c1
		vHat := state.v[i] / c2
		params[i] -= o.LearningRate * mHat / (math.Sqrt(vHat) + o.Epsilon)
	}
}

// Reset drops all accumulated moments.
func (o *Adam) Reset() {
	o.slots = nil
}
