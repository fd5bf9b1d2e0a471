package normalize

import (
	"errors"
	"math"
	"testing"
)

func TestBoundsStartAtSentinel(t *testing.T) {
	b, err := NewBounds(2)
	if err != nil {
		t.Fatalf("new bounds: %v", err)
	}
	if b.Initialized() {
		t.Fatal("fresh bounds should not be initialized")
	}
	for i := 0; i < 2; i++ {
		if !math.IsInf(b.Min()[i], 1) || !math.IsInf(b.Max()[i], -1) {
			t.Fatalf("unexpected sentinel at %d: min=%f max=%f", i, b.Min()[i], b.Max()[i])
		}
	}
	if _, err := b.Normalize01([]float64{0, 0}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got: %v", err)
	}
}

func TestBoundsAbsorbReturnsNewValue(t *testing.T) {
	b, _ := NewBounds(1)
	next, err := b.Absorb([]float64{3})
	if err != nil {
		t.Fatalf("absorb: %v", err)
	}
	if b.Initialized() {
		t.Fatal("absorb mutated the receiver")
	}
	next2, _ := next.Absorb([]float64{-1})
	if next.Min()[0] != 3 || next2.Min()[0] != -1 || next2.Max()[0] != 3 {
		t.Fatalf("unexpected bounds: next=%v/%v next2=%v/%v", next.Min(), next.Max(), next2.Min(), next2.Max())
	}
	out, _ := next2.NormalizeMinusOneOne([]float64{1})
	if math.Abs(out[0]) > 1e-6 {
		t.Fatalf("midpoint should map to 0: got=%f", out[0])
	}
	if _, err := next2.Absorb([]float64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got: %v", err)
	}
}

func TestBoundsFromValidates(t *testing.T) {
	if _, err := BoundsFrom([]float64{2}, []float64{1}); err == nil {
		t.Fatal("expected inverted bounds error")
	}
	if _, err := BoundsFrom([]float64{1, 2}, []float64{3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got: %v", err)
	}
	b, err := BoundsFrom([]float64{math.Inf(1)}, []float64{math.Inf(-1)})
	if err != nil || b.Initialized() {
		t.Fatalf("sentinel bounds should load uninitialized: err=%v", err)
	}
}
