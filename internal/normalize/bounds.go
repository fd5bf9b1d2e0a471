package normalize

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon keeps zero-range dimensions from dividing by zero.
const Epsilon = 1e-8

var (
	ErrNotInitialized    = errors.New("normalizer has not observed any data")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidDimension  = errors.New("dimension must be > 0")
)

// Bounds is an immutable per-dimension (min, max) pair. Absorb returns a new
// value and never touches the receiver.
type Bounds struct {
	min []float64
	max []float64
}

// NewBounds returns bounds at the (+Inf, -Inf) sentinel in every dimension.
func NewBounds(dim int) (Bounds, error) {
	if dim <= 0 {
		return Bounds{}, fmt.Errorf("%w: got %d", ErrInvalidDimension, dim)
	}
	b := Bounds{min: make([]float64, dim), max: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		b.min[i] = math.Inf(1)
		b.max[i] = math.Inf(-1)
	}
	return b, nil
}

// BoundsFrom builds bounds from persisted min/max slices.
func BoundsFrom(min, max []float64) (Bounds, error) {
	if len(min) == 0 {
		return Bounds{}, fmt.Errorf("%w: got 0", ErrInvalidDimension)
	}
	if len(min) != len(max) {
		return Bounds{}, fmt.Errorf("%w: min=%d max=%d", ErrDimensionMismatch, len(min), len(max))
	}
	for i := range min {
		if min[i] > max[i] && !(math.IsInf(min[i], 1) && math.IsInf(max[i], -1)) {
			return Bounds{}, fmt.Errorf("dimension %d: min %f exceeds max %f", i, min[i], max[i])
		}
	}
	return Bounds{
		min: append([]float64(nil), min...),
		max: append([]float64(nil), max...),
	}, nil
}

func (b Bounds) Dim() int {
	return len(b.min)
}

func (b Bounds) Min() []float64 {
	return append([]float64(nil), b.min...)
}

func (b Bounds) Max() []float64 {
	return append([]float64(nil), b.max...)
}

// Initialized reports whether every dimension has absorbed at least one value.
func (b Bounds) Initialized() bool {
	if len(b.min) == 0 {
		return false
	}
	for i := range b.min {
		if b.min[i] > b.max[i] {
			return false
		}
	}
	return true
}

func (b Bounds) Absorb(v []float64) (Bounds, error) {
	if len(v) != len(b.min) {
		return Bounds{}, fmt.Errorf("%w: bounds=%d vector=%d", ErrDimensionMismatch, len(b.min), len(v))
	}
	next := Bounds{
		min: append([]float64(nil), b.min...),
		max: append([]float64(nil), b.max...),
	}
	next.absorbInPlace(v)
	return next, nil
}

func (b Bounds) absorbInPlace(v []float64) {
	for i, x := range v {
		if x < b.min[i] {
			b.min[i] = x
		}
		if x > b.max[i] {
			b.max[i] = x
		}
	}
}

func (b Bounds) Normalize01(v []float64) ([]float64, error) {
	if len(v) != len(b.min) {
		return nil, fmt.Errorf("%w: bounds=%d vector=%d", ErrDimensionMismatch, len(b.min), len(v))
	}
	if !b.Initialized() {
		return nil, ErrNotInitialized
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - b.min[i]) / (b.max[i] - b.min[i] + Epsilon)
	}
	return out, nil
}

func (b Bounds) NormalizeMinusOneOne(v []float64) ([]float64, error) {
	out, err := b.Normalize01(v)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = 2*out[i] - 1
	}
	return out, nil
}

func dimensionError(want, got int) error {
	return fmt.Errorf("%w: bounds=%d vector=%d", ErrDimensionMismatch, want, got)
}
