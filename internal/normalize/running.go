package normalize

import "sync"

// RunningNormalizer tracks per-dimension bounds over a live stream. All
// methods are safe for concurrent use.
type RunningNormalizer struct {
	// dim is fixed at construction; Restore only accepts bounds of this size.
	dim int

	mu     sync.Mutex
	bounds Bounds
}

func NewRunningNormalizer(dim int) (*RunningNormalizer, error) {
	bounds, err := NewBounds(dim)
	if err != nil {
		return nil, err
	}
	return &RunningNormalizer{dim: dim, bounds: bounds}, nil
}

func (n *RunningNormalizer) Dim() int {
	return n.dim
}

func (n *RunningNormalizer) Optimize(v []float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.absorbLocked(v)
}

// Normalize01 rescales v to [0,1]. With optimize set, v is absorbed first so
// it takes part in its own rescaling.
func (n *RunningNormalizer) Normalize01(v []float64, optimize bool) ([]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if optimize {
		if err := n.absorbLocked(v); err != nil {
			return nil, err
		}
	}
	return n.bounds.Normalize01(v)
}

func (n *RunningNormalizer) NormalizeMinusOneOne(v []float64, optimize bool) ([]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if optimize {
		if err := n.absorbLocked(v); err != nil {
			return nil, err
		}
	}
	return n.bounds.NormalizeMinusOneOne(v)
}

// Snapshot returns the current bounds. The result does not change when the
// normalizer absorbs more data.
func (n *RunningNormalizer) Snapshot() Bounds {
	n.mu.Lock()
	defer n.mu.Unlock()
	out, _ := BoundsFrom(n.bounds.min, n.bounds.max)
	return out
}

// Restore replaces the current bounds, typically with persisted ones.
func (n *RunningNormalizer) Restore(b Bounds) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b.Dim() != n.dim {
		return dimensionError(n.dim, b.Dim())
	}
	n.bounds = Bounds{min: b.Min(), max: b.Max()}
	return nil
}

func (n *RunningNormalizer) absorbLocked(v []float64) error {
	if len(v) != n.bounds.Dim() {
		return dimensionError(n.bounds.Dim(), len(v))
	}
	n.bounds.absorbInPlace(v)
	return nil
}
