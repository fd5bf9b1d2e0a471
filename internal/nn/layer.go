package nn

import (
	"errors"
	"fmt"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

// Neuron holds the three value channels of one unit: In is the
// pre-activation sum, Out the activated value and Cost the backpropagated
// error with respect to In.
type Neuron struct {
	In   float64
	Out  float64
	Cost float64
}

// NeuronLayer is a fixed-size ordered run of neurons.
type NeuronLayer struct {
	neurons []Neuron
}

func NewNeuronLayer(size int) *NeuronLayer {
	if size < 0 {
		size = 0
	}
	return &NeuronLayer{neurons: make([]Neuron, size)}
}

func (l *NeuronLayer) Size() int {
	return len(l.neurons)
}

// Neuron returns a copy of the neuron at index i.
func (l *NeuronLayer) Neuron(i int) Neuron {
	return l.neurons[i]
}

func (l *NeuronLayer) SetInValues(values []float64) error {
	if err := l.checkLen(values); err != nil {
		return err
	}
	for i, v := range values {
		l.neurons[i].In = v
	}
	return nil
}

func (l *NeuronLayer) InValues() []float64 {
	out := make([]float64, len(l.neurons))
	for i, n := range l.neurons {
		out[i] = n.In
	}
	return out
}

func (l *NeuronLayer) SetOutValues(values []float64) error {
	if err := l.checkLen(values); err != nil {
		return err
	}
	for i, v := range values {
		l.neurons[i].Out = v
	}
	return nil
}

func (l *NeuronLayer) OutValues() []float64 {
	out := make([]float64, len(l.neurons))
	for i, n := range l.neurons {
		out[i] = n.Out
	}
	return out
}

func (l *NeuronLayer) SetCosts(values []float64) error {
	if err := l.checkLen(values); err != nil {
		return err
	}
	for i, v := range values {
		l.neurons[i].Cost = v
	}
	return nil
}

func (l *NeuronLayer) Costs() []float64 {
	out := make([]float64, len(l.neurons))
	for i, n := range l.neurons {
		out[i] = n.Cost
	}
	return out
}

func (l *NeuronLayer) ResetCosts() {
	for i := range l.neurons {
		l.neurons[i].Cost = 0
	}
}

// Clone returns a deep copy that shares no neuron storage with l.
func (l *NeuronLayer) Clone() *NeuronLayer {
	neurons := make([]Neuron, len(l.neurons))
	copy(neurons, l.neurons)
	return &NeuronLayer{neurons: neurons}
}

func (l *NeuronLayer) checkLen(values []float64) error {
	if len(values) != len(l.neurons) {
		return fmt.Errorf("%w: layer size=%d values=%d", ErrDimensionMismatch, len(l.neurons), len(values))
	}
	return nil
}
