package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gamelearn/internal/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrNoForwardPass = errors.New("backward called before forward")

type LayerSpec struct {
	Size       int
	Activation string
	// InitScale multiplies the initial weights; zero means 1.
	InitScale float64
}

type NetworkSpec struct {
	InputSize int
	Layers    []LayerSpec
}

func (s NetworkSpec) Validate() error {
	if s.InputSize <= 0 {
		return fmt.Errorf("input size must be > 0, got %d", s.InputSize)
	}
	if len(s.Layers) == 0 {
		return errors.New("network requires at least one layer")
	}
	for i, layer := range s.Layers {
		if layer.Size <= 0 {
			return fmt.Errorf("layer %d size must be > 0, got %d", i, layer.Size)
		}
		if _, err := GetActivation(layer.Activation); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

type denseLayer struct {
	weights    *mat.Dense
	biases     []float64
	activation Activation
	state      *NeuronLayer
}

// Network is a dense feed-forward network. Predict only reads weights and is
// safe for concurrent use; Forward and Backward record per-layer state and
// must be serialized by the caller.
type Network struct {
	inputSize int
	input     *NeuronLayer
	layers    []*denseLayer
	forwarded bool
}

// Gradients holds one weight matrix and bias vector per layer, shaped like
// the network that produced them.
type Gradients struct {
	Weights []*mat.Dense
	Biases  [][]float64
}

func NewNetwork(spec NetworkSpec, rng *rand.Rand) (*Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	n := &Network{
		inputSize: spec.InputSize,
		input:     NewNeuronLayer(spec.InputSize),
		layers:    make([]*denseLayer, 0, len(spec.Layers)),
	}
	fanIn := spec.InputSize
	for _, ls := range spec.Layers {
		act, _ := GetActivation(ls.Activation)
		scale := ls.InitScale
		if scale == 0 {
			scale = 1
		}
		std := initStd(ls.Activation, fanIn, ls.Size) * scale
		data := make([]float64, ls.Size*fanIn)
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
		n.layers = append(n.layers, &denseLayer{
			weights:    mat.NewDense(ls.Size, fanIn, data),
			biases:     make([]float64, ls.Size),
			activation: act,
			state:      NewNeuronLayer(ls.Size),
		})
		fanIn = ls.Size
	}
	return n, nil
}

// initStd is He initialization for the relu family and Xavier otherwise.
func initStd(activation string, fanIn, fanOut int) float64 {
	switch activation {
	case "relu", "leaky_relu", "silu":
		return math.Sqrt(2 / float64(fanIn))
	default:
		return math.Sqrt(2 / float64(fanIn+fanOut))
	}
}

func (n *Network) InputSize() int {
	return n.inputSize
}

func (n *Network) OutputSize() int {
	return n.layers[len(n.layers)-1].state.Size()
}

func (n *Network) LayerCount() int {
	return len(n.layers)
}

// Layer returns a copy of the recorded state of layer i.
func (n *Network) Layer(i int) *NeuronLayer {
	return n.layers[i].state.Clone()
}

// Predict runs a forward pass without touching recorded layer state.
func (n *Network) Predict(x []float64) ([]float64, error) {
	if len(x) != n.inputSize {
		return nil, fmt.Errorf("%w: input size=%d got=%d", ErrDimensionMismatch, n.inputSize, len(x))
	}
	current := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for _, layer := range n.layers {
		rows, _ := layer.weights.Dims()
		z := mat.NewVecDense(rows, nil)
		z.MulVec(layer.weights, current)
		for i := 0; i < rows; i++ {
			z.SetVec(i, layer.activation.Func(z.AtVec(i)+layer.biases[i]))
		}
		current = z
	}
	return append([]float64(nil), current.RawVector().Data...), nil
}

// Forward runs a training pass that records In and Out for every layer.
func (n *Network) Forward(x []float64) ([]float64, error) {
	if err := n.input.SetOutValues(x); err != nil {
		return nil, err
	}
	current := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for _, layer := range n.layers {
		rows, _ := layer.weights.Dims()
		z := mat.NewVecDense(rows, nil)
		z.MulVec(layer.weights, current)
		in := make([]float64, rows)
		out := make([]float64, rows)
		for i := 0; i < rows; i++ {
			in[i] = z.AtVec(i) + layer.biases[i]
			out[i] = layer.activation.Func(in[i])
		}
		_ = layer.state.SetInValues(in)
		_ = layer.state.SetOutValues(out)
		current = mat.NewVecDense(rows, out)
	}
	n.forwarded = true
	return n.layers[len(n.layers)-1].state.OutValues(), nil
}

// Backward propagates outputGrad (dLoss/dOut of the last layer) through the
// state recorded by the last Forward. Each layer's cost channel is zeroed
// and then filled with dLoss/dIn.
func (n *Network) Backward(outputGrad []float64) (Gradients, error) {
	if !n.forwarded {
		return Gradients{}, ErrNoForwardPass
	}
	if len(outputGrad) != n.OutputSize() {
		return Gradients{}, fmt.Errorf("%w: output size=%d grad=%d", ErrDimensionMismatch, n.OutputSize(), len(outputGrad))
	}
	grads := n.ZeroGradients()
	upstream := append([]float64(nil), outputGrad...)
	for li := len(n.layers) - 1; li >= 0; li-- {
		layer := n.layers[li]
		layer.state.ResetCosts()
		in := layer.state.InValues()
		delta := make([]float64, len(in))
		for i, x := range in {
			delta[i] = upstream[i] * layer.activation.Derivative(x)
		}
		_ = layer.state.SetCosts(delta)

		var prevOut []float64
		if li == 0 {
			prevOut = n.input.OutValues()
		} else {
			prevOut = n.layers[li-1].state.OutValues()
		}
		deltaVec := mat.NewVecDense(len(delta), delta)
		grads.Weights[li].Outer(1, deltaVec, mat.NewVecDense(len(prevOut), prevOut))
		copy(grads.Biases[li], delta)

		if li > 0 {
			next := mat.NewVecDense(len(prevOut), nil)
			next.MulVec(layer.weights.T(), deltaVec)
			upstream = next.RawVector().Data
		}
	}
	return grads, nil
}

// ZeroGradients returns zero-valued gradients shaped like n.
func (n *Network) ZeroGradients() Gradients {
	g := Gradients{
		Weights: make([]*mat.Dense, len(n.layers)),
		Biases:  make([][]float64, len(n.layers)),
	}
	for i, layer := range n.layers {
		rows, cols := layer.weights.Dims()
		g.Weights[i] = mat.NewDense(rows, cols, nil)
		g.Biases[i] = make([]float64, rows)
	}
	return g
}

// Add accumulates other into g. Both must share a shape.
func (g Gradients) Add(other Gradients) {
	for i := range g.Weights {
		g.Weights[i].Add(g.Weights[i], other.Weights[i])
		for j := range g.Biases[i] {
			g.Biases[i][j] += other.Biases[i][j]
		}
	}
}

func (g Gradients) Scale(s float64) {
	for i := range g.Weights {
		g.Weights[i].Scale(s, g.Weights[i])
		for j := range g.Biases[i] {
			g.Biases[i][j] *= s
		}
	}
}

func (g Gradients) SquaredNorm() float64 {
	total := 0.0
	for i := range g.Weights {
		w := rawData(g.Weights[i])
		total += floats.Dot(w, w)
		for _, b := range g.Biases[i] {
			total += b * b
		}
	}
	return total
}

// ClipGradients rescales all grads jointly so their global L2 norm is at most
// maxNorm and returns the norm measured before clipping. A non-positive
// maxNorm disables clipping.
func ClipGradients(maxNorm float64, grads ...Gradients) float64 {
	total := 0.0
	for _, g := range grads {
		total += g.SquaredNorm()
	}
	norm := math.Sqrt(total)
	if maxNorm > 0 && norm > maxNorm {
		scale := maxNorm / (norm + 1e-12)
		for _, g := range grads {
			g.Scale(scale)
		}
	}
	return norm
}

// ApplyGradients descends along grads using opt. Each layer uses two
// optimizer slots: 2*i for weights and 2*i+1 for biases.
func (n *Network) ApplyGradients(grads Gradients, opt Optimizer) error {
	if len(grads.Weights) != len(n.layers) || len(grads.Biases) != len(n.layers) {
		return fmt.Errorf("%w: layers=%d grads=%d", ErrDimensionMismatch, len(n.layers), len(grads.Weights))
	}
	for i, layer := range n.layers {
		rows, cols := layer.weights.Dims()
		gr, gc := grads.Weights[i].Dims()
		if rows != gr || cols != gc || len(grads.Biases[i]) != rows {
			return fmt.Errorf("%w: layer %d shape", ErrDimensionMismatch, i)
		}
		opt.Step(2*i, rawData(layer.weights), rawData(grads.Weights[i]))
		opt.Step(2*i+1, layer.biases, grads.Biases[i])
	}
	return nil
}

// rawData returns the backing slice of a dense matrix created by mat.NewDense.
func rawData(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

func (n *Network) Clone() *Network {
	out := &Network{
		inputSize: n.inputSize,
		input:     n.input.Clone(),
		layers:    make([]*denseLayer, len(n.layers)),
		forwarded: n.forwarded,
	}
	for i, layer := range n.layers {
		out.layers[i] = &denseLayer{
			weights:    mat.DenseCopyOf(layer.weights),
			biases:     append([]float64(nil), layer.biases...),
			activation: layer.activation,
			state:      layer.state.Clone(),
		}
	}
	return out
}

func (n *Network) Weights() model.NetworkWeights {
	out := model.NetworkWeights{
		InputSize: n.inputSize,
		Layers:    make([]model.LayerWeights, len(n.layers)),
	}
	for i, layer := range n.layers {
		rows, cols := layer.weights.Dims()
		out.Layers[i] = model.LayerWeights{
			Rows:       rows,
			Cols:       cols,
			Weights:    append([]float64(nil), rawData(mat.DenseCopyOf(layer.weights))...),
			Biases:     append([]float64(nil), layer.biases...),
			Activation: layer.activation.Name,
		}
	}
	return out
}

func NetworkFromWeights(w model.NetworkWeights) (*Network, error) {
	if w.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be > 0, got %d", w.InputSize)
	}
	if len(w.Layers) == 0 {
		return nil, errors.New("network requires at least one layer")
	}
	n := &Network{
		inputSize: w.InputSize,
		input:     NewNeuronLayer(w.InputSize),
		layers:    make([]*denseLayer, 0, len(w.Layers)),
	}
	fanIn := w.InputSize
	for i, lw := range w.Layers {
		if lw.Cols != fanIn || lw.Rows <= 0 || len(lw.Weights) != lw.Rows*lw.Cols || len(lw.Biases) != lw.Rows {
			return nil, fmt.Errorf("%w: layer %d rows=%d cols=%d weights=%d biases=%d",
				ErrDimensionMismatch, i, lw.Rows, lw.Cols, len(lw.Weights), len(lw.Biases))
		}
		act, err := GetActivation(lw.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		n.layers = append(n.layers, &denseLayer{
			weights:    mat.NewDense(lw.Rows, lw.Cols, append([]float64(nil), lw.Weights...)),
			biases:     append([]float64(nil), lw.Biases...),
			activation: act,
			state:      NewNeuronLayer(lw.Rows),
		})
		fanIn = lw.Rows
	}
	return n, nil
}
