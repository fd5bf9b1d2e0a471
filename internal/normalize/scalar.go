package normalize

import "sync"

// ScalarNormalizer tracks a single channel such as a reward stream. It keeps
// its own one-slot bounds and is not a RunningNormalizer.
type ScalarNormalizer struct {
	mu     sync.Mutex
	bounds Bounds
}

func NewScalarNormalizer() *ScalarNormalizer {
	bounds, _ := NewBounds(1)
	return &ScalarNormalizer{bounds: bounds}
}

func (n *ScalarNormalizer) Optimize(x float64) {
	n.mu.Lock()
	n.bounds.absorbInPlace([]float64{x})
	n.mu.Unlock()
}

func (n *ScalarNormalizer) Normalize01(x float64, optimize bool) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if optimize {
		n.bounds.absorbInPlace([]float64{x})
	}
	out, err := n.bounds.Normalize01([]float64{x})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (n *ScalarNormalizer) NormalizeMinusOneOne(x float64, optimize bool) (float64, error) {
	v, err := n.Normalize01(x, optimize)
	if err != nil {
		return 0, err
	}
	return 2*v - 1, nil
}

// Range returns the observed (min, max). Before any data it returns the
// (+Inf, -Inf) sentinel.
func (n *ScalarNormalizer) Range() (float64, float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bounds.min[0], n.bounds.max[0]
}
