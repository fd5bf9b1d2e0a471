package evo

import (
	"math"
	"math/rand"
	"testing"

	"gamelearn/internal/model"
)

func TestCrossoverKeepsFitterStructure(t *testing.T) {
	fitter := newComplexLinearGenome("fit", 1)
	other := newLinearGenome("other", -1)
	other.Synapses = append(other.Synapses, model.Synapse{Innovation: 9, From: 0, To: 1, Weight: 3, Enabled: true})
	rng := rand.New(rand.NewSource(10))

	for i := 0; i < 20; i++ {
		child := Crossover(fitter, other, rng)
		if len(child.Synapses) != len(fitter.Synapses) || len(child.Neurons) != len(fitter.Neurons) {
			t.Fatalf("child should carry exactly the fitter genes: synapses=%d neurons=%d", len(child.Synapses), len(child.Neurons))
		}
		for j, s := range child.Synapses {
			if s.Innovation != fitter.Synapses[j].Innovation {
				t.Fatalf("innovation order changed at %d", j)
			}
			if s.Innovation == 9 {
				t.Fatal("excess gene of the weaker parent inherited")
			}
		}
		w := child.Synapses[0].Weight
		if w != 1 && w != -1 {
			t.Fatalf("matching gene weight must come from a parent: %f", w)
		}
		mustCompile(t, child)
	}
}

func TestCrossoverMixesMatchingGenes(t *testing.T) {
	a := newLinearGenome("a", 1)
	b := newLinearGenome("b", -1)
	rng := rand.New(rand.NewSource(11))
	seen := map[float64]bool{}
	for i := 0; i < 50; i++ {
		seen[Crossover(a, b, rng).Synapses[0].Weight] = true
	}
	if !seen[1] || !seen[-1] {
		t.Fatalf("expected matching genes from both parents, saw %v", seen)
	}
}

func TestCrossoverDisabledGenesMostlyStayDisabled(t *testing.T) {
	a := newLinearGenome("a", 1)
	b := newLinearGenome("b", 1)
	b.Synapses[0].Enabled = false
	rng := rand.New(rand.NewSource(12))
	disabled := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		if !Crossover(a, b, rng).Synapses[0].Enabled {
			disabled++
		}
	}
	rate := float64(disabled) / trials
	if math.Abs(rate-disabledGeneInheritance) > 0.05 {
		t.Fatalf("unexpected disabled rate: got=%f want=%f", rate, disabledGeneInheritance)
	}
}

func TestCompatibilityDistance(t *testing.T) {
	c := CompatibilityCoefficients{Excess: 1, Disjoint: 2, Weight: 0.5}
	a := newLinearGenome("a", 1)
	if d := CompatibilityDistance(a, a, c); d != 0 {
		t.Fatalf("self distance: got=%f want=0", d)
	}

	b := newLinearGenome("b", 0)
	if d := CompatibilityDistance(a, b, c); d != 0.5 {
		t.Fatalf("weight-only distance: got=%f want=0.5", d)
	}

	// a has innovation 1; complex has 1..4 so 2..4 are excess
	complex := newComplexLinearGenome("c", 1)
	if d := CompatibilityDistance(a, complex, c); d != 3 {
		t.Fatalf("excess distance: got=%f want=3", d)
	}

	// innovation 2 is missing from d but lies within its range: disjoint
	d := newComplexLinearGenome("d", 1)
	d.Synapses = append(d.Synapses[:1], d.Synapses[2:]...)
	if got := CompatibilityDistance(complex, d, c); got != 2 {
		t.Fatalf("disjoint distance: got=%f want=2", got)
	}
}

func TestCompatibilityDistanceNormalizesLargeGenomes(t *testing.T) {
	big := model.Genome{}
	for i := 1; i <= 20; i++ {
		big.Synapses = append(big.Synapses, model.Synapse{Innovation: int64(i), Weight: 1, Enabled: true})
	}
	small := model.Genome{Synapses: big.Synapses[:10]}
	got := CompatibilityDistance(big, small, CompatibilityCoefficients{Excess: 1})
	if got != 0.5 {
		t.Fatalf("normalized excess distance: got=%f want=0.5", got)
	}
}
