package nn

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"gamelearn/internal/model"
)

func testSpec() NetworkSpec {
	return NetworkSpec{
		InputSize: 3,
		Layers: []LayerSpec{
			{Size: 4, Activation: "tanh"},
			{Size: 2, Activation: "linear"},
		},
	}
}

func mustNetwork(t *testing.T, spec NetworkSpec, seed int64) *Network {
	t.Helper()
	net, err := NewNetwork(spec, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return net
}

func TestNetworkSpecValidation(t *testing.T) {
	cases := []struct {
		name string
		spec NetworkSpec
	}{
		{name: "no input", spec: NetworkSpec{InputSize: 0, Layers: []LayerSpec{{Size: 1, Activation: "linear"}}}},
		{name: "no layers", spec: NetworkSpec{InputSize: 2}},
		{name: "empty layer", spec: NetworkSpec{InputSize: 2, Layers: []LayerSpec{{Size: 0, Activation: "linear"}}}},
		{name: "unknown activation", spec: NetworkSpec{InputSize: 2, Layers: []LayerSpec{{Size: 1, Activation: "bogus"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewNetwork(tc.spec, rand.New(rand.NewSource(1))); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNetworkFromWeightsComputesKnownOutput(t *testing.T) {
	net, err := NetworkFromWeights(model.NetworkWeights{
		InputSize: 2,
		Layers: []model.LayerWeights{
			{Rows: 1, Cols: 2, Weights: []float64{0.5, -1}, Biases: []float64{0.25}, Activation: "relu"},
		},
	})
	if err != nil {
		t.Fatalf("network from weights: %v", err)
	}
	out, err := net.Predict([]float64{2, 0.5})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if want := 0.75; math.Abs(out[0]-want) > 1e-12 {
		t.Fatalf("unexpected output: got=%f want=%f", out[0], want)
	}
	out, _ = net.Predict([]float64{-2, 1})
	if out[0] != 0 {
		t.Fatalf("expected relu clamp, got=%f", out[0])
	}
}

func TestNetworkFromWeightsRejectsBadShape(t *testing.T) {
	_, err := NetworkFromWeights(model.NetworkWeights{
		InputSize: 2,
		Layers: []model.LayerWeights{
			{Rows: 1, Cols: 3, Weights: []float64{1, 2, 3}, Biases: []float64{0}, Activation: "linear"},
		},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got: %v", err)
	}
}

func TestPredictMatchesForwardAndLeavesStateUntouched(t *testing.T) {
	net := mustNetwork(t, testSpec(), 7)
	x := []float64{0.2, -0.4, 0.9}
	predicted, err := net.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for _, v := range net.Layer(1).OutValues() {
		if v != 0 {
			t.Fatalf("predict wrote layer state: %v", net.Layer(1).OutValues())
		}
	}
	forwarded, err := net.Forward(x)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for i := range predicted {
		if math.Abs(predicted[i]-forwarded[i]) > 1e-12 {
			t.Fatalf("predict/forward mismatch at %d: got=%f want=%f", i, predicted[i], forwarded[i])
		}
	}
	recorded := net.Layer(1).OutValues()
	for i := range recorded {
		if recorded[i] != forwarded[i] {
			t.Fatalf("forward did not record outputs: got=%v want=%v", recorded, forwarded)
		}
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	net := mustNetwork(t, testSpec(), 1)
	if _, err := net.Predict([]float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got: %v", err)
	}
	if _, err := net.Forward([]float64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch from forward, got: %v", err)
	}
}

func TestBackwardBeforeForward(t *testing.T) {
	net := mustNetwork(t, testSpec(), 1)
	if _, err := net.Backward([]float64{1, 1}); !errors.Is(err, ErrNoForwardPass) {
		t.Fatalf("expected ErrNoForwardPass, got: %v", err)
	}
}

func TestBackwardMatchesFiniteDifference(t *testing.T) {
	net := mustNetwork(t, testSpec(), 3)
	x := []float64{0.3, -0.1, 0.8}
	// loss = 0.5 * sum(out^2), so dLoss/dOut = out.
	loss := func(n *Network) float64 {
		out, err := n.Predict(x)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		total := 0.0
		for _, v := range out {
			total += 0.5 * v * v
		}
		return total
	}
	out, err := net.Forward(x)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	grads, err := net.Backward(out)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}

	const h = 1e-6
	base := net.Weights()
	for li, layer := range base.Layers {
		for k := range layer.Weights {
			plus := cloneWeights(base)
			plus.Layers[li].Weights[k] += h
			minus := cloneWeights(base)
			minus.Layers[li].Weights[k] -= h
			pn, _ := NetworkFromWeights(plus)
			mn, _ := NetworkFromWeights(minus)
			numeric := (loss(pn) - loss(mn)) / (2 * h)
			got := grads.Weights[li].At(k/layer.Cols, k%layer.Cols)
			if math.Abs(got-numeric) > 1e-6 {
				t.Fatalf("weight grad layer=%d k=%d: got=%f want=%f", li, k, got, numeric)
			}
		}
		for k := range layer.Biases {
			plus := cloneWeights(base)
			plus.Layers[li].Biases[k] += h
			minus := cloneWeights(base)
			minus.Layers[li].Biases[k] -= h
			pn, _ := NetworkFromWeights(plus)
			mn, _ := NetworkFromWeights(minus)
			numeric := (loss(pn) - loss(mn)) / (2 * h)
			if got := grads.Biases[li][k]; math.Abs(got-numeric) > 1e-6 {
				t.Fatalf("bias grad layer=%d k=%d: got=%f want=%f", li, k, got, numeric)
			}
		}
	}
	costs := net.Layer(1).Costs()
	for i := range costs {
		if costs[i] != grads.Biases[1][i] {
			t.Fatalf("cost channel mismatch at %d: got=%f want=%f", i, costs[i], grads.Biases[1][i])
		}
	}
}

func TestBackwardResetsCostsBetweenPasses(t *testing.T) {
	net := mustNetwork(t, testSpec(), 5)
	x := []float64{1, 1, 1}
	if _, err := net.Forward(x); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if _, err := net.Backward([]float64{10, 10}); err != nil {
		t.Fatalf("backward: %v", err)
	}
	if _, err := net.Backward([]float64{0, 0}); err != nil {
		t.Fatalf("backward: %v", err)
	}
	for li := 0; li < net.LayerCount(); li++ {
		for _, c := range net.Layer(li).Costs() {
			if c != 0 {
				t.Fatalf("expected zero costs after zero gradient pass, layer=%d got=%v", li, net.Layer(li).Costs())
			}
		}
	}
}

func TestGradientDescentReducesLoss(t *testing.T) {
	net := mustNetwork(t, NetworkSpec{
		InputSize: 1,
		Layers: []LayerSpec{
			{Size: 8, Activation: "tanh"},
			{Size: 1, Activation: "linear"},
		},
	}, 11)
	xs := []float64{-1, -0.5, 0, 0.5, 1}
	target := func(x float64) float64 { return 0.5*x + 0.2 }
	mse := func() float64 {
		total := 0.0
		for _, x := range xs {
			out, _ := net.Predict([]float64{x})
			d := out[0] - target(x)
			total += d * d
		}
		return total / float64(len(xs))
	}
	before := mse()
	opt := NewAdam(0.01)
	for epoch := 0; epoch < 300; epoch++ {
		batch := net.ZeroGradients()
		for _, x := range xs {
			out, _ := net.Forward([]float64{x})
			g, err := net.Backward([]float64{out[0] - target(x)})
			if err != nil {
				t.Fatalf("backward: %v", err)
			}
			batch.Add(g)
		}
		batch.Scale(1 / float64(len(xs)))
		ClipGradients(1, batch)
		if err := net.ApplyGradients(batch, opt); err != nil {
			t.Fatalf("apply gradients: %v", err)
		}
	}
	after := mse()
	if after >= before*0.25 {
		t.Fatalf("expected loss to drop by 4x: before=%f after=%f", before, after)
	}
}

func TestClipGradientsBoundsGlobalNorm(t *testing.T) {
	net := mustNetwork(t, testSpec(), 2)
	a := net.ZeroGradients()
	b := net.ZeroGradients()
	a.Biases[0][0] = 3
	b.Biases[1][1] = 4
	norm := ClipGradients(1, a, b)
	if math.Abs(norm-5) > 1e-12 {
		t.Fatalf("unexpected pre-clip norm: got=%f want=5", norm)
	}
	after := math.Sqrt(a.SquaredNorm() + b.SquaredNorm())
	if math.Abs(after-1) > 1e-9 {
		t.Fatalf("unexpected post-clip norm: got=%f want=1", after)
	}
	if ClipGradients(0, a) == 0 {
		t.Fatal("expected norm to be reported with clipping disabled")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	net := mustNetwork(t, testSpec(), 9)
	x := []float64{0.1, 0.2, 0.3}
	before, _ := net.Predict(x)
	clone := net.Clone()

	out, _ := clone.Forward(x)
	grads, err := clone.Backward(out)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if err := clone.ApplyGradients(grads, &SGD{LearningRate: 0.5}); err != nil {
		t.Fatalf("apply gradients: %v", err)
	}

	after, _ := net.Predict(x)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("mutating clone changed original: before=%v after=%v", before, after)
		}
	}
	changed, _ := clone.Predict(x)
	if changed[0] == before[0] && changed[1] == before[1] {
		t.Fatal("expected clone outputs to change after update")
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	net := mustNetwork(t, testSpec(), 4)
	rebuilt, err := NetworkFromWeights(net.Weights())
	if err != nil {
		t.Fatalf("network from weights: %v", err)
	}
	x := []float64{-0.5, 0.25, 1}
	a, _ := net.Predict(x)
	b, _ := rebuilt.Predict(x)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("round trip mismatch at %d: got=%f want=%f", i, b[i], a[i])
		}
	}
}

func TestPredictConcurrentReaders(t *testing.T) {
	net := mustNetwork(t, testSpec(), 6)
	x := []float64{0.4, 0.4, 0.4}
	want, _ := net.Predict(x)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := net.Predict(x)
				if err != nil {
					errs <- err
					return
				}
				if got[0] != want[0] {
					errs <- errors.New("concurrent predict diverged")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent predict: %v", err)
	}
}

func cloneWeights(w model.NetworkWeights) model.NetworkWeights {
	out := model.NetworkWeights{InputSize: w.InputSize, Layers: make([]model.LayerWeights, len(w.Layers))}
	for i, l := range w.Layers {
		l.Weights = append([]float64(nil), l.Weights...)
		l.Biases = append([]float64(nil), l.Biases...)
		out.Layers[i] = l
	}
	return out
}
