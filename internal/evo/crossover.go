package evo

import (
	"math"
	"math/rand"

	"gamelearn/internal/genotype"
	"gamelearn/internal/model"
)

const disabledGeneInheritance = 0.75

// Crossover aligns the parents' synapses by innovation number. Matching genes
// come from either parent at random; disjoint and excess genes come from
// fitter, so the child has exactly fitter's wiring and stays acyclic. A gene
// disabled in either parent stays disabled with probability 0.75.
func Crossover(fitter, other model.Genome, rng *rand.Rand) model.Genome {
	child := genotype.CloneGenome(fitter)
	child.Fitness = 0

	otherSynapses := make(map[int64]model.Synapse, len(other.Synapses))
	for _, s := range other.Synapses {
		otherSynapses[s.Innovation] = s
	}
	for i, gene := range child.Synapses {
		match, ok := otherSynapses[gene.Innovation]
		if !ok {
			continue
		}
		if rng.Intn(2) == 1 {
			child.Synapses[i].Weight = match.Weight
		}
		if !gene.Enabled || !match.Enabled {
			child.Synapses[i].Enabled = rng.Float64() >= disabledGeneInheritance
		}
	}

	otherNeurons := make(map[int]model.Neuron, len(other.Neurons))
	for _, n := range other.Neurons {
		otherNeurons[n.ID] = n
	}
	for i, n := range child.Neurons {
		match, ok := otherNeurons[n.ID]
		if !ok || match.Role != n.Role || !computes(n.Role) {
			continue
		}
		if rng.Intn(2) == 1 {
			child.Neurons[i].Bias = match.Bias
		}
	}
	return child
}

type CompatibilityCoefficients struct {
	Excess   float64
	Disjoint float64
	Weight   float64
}

func DefaultCompatibility() CompatibilityCoefficients {
	return CompatibilityCoefficients{Excess: 1, Disjoint: 1, Weight: 0.4}
}

// CompatibilityDistance is c1*E/N + c2*D/N + c3*W, where E and D count
// excess and disjoint synapse genes, W is the mean weight difference of
// matching genes and N is the larger genome's gene count, or 1 when both
// genomes have fewer than 20 genes.
func CompatibilityDistance(a, b model.Genome, c CompatibilityCoefficients) float64 {
	aGenes := make(map[int64]float64, len(a.Synapses))
	var aMax int64
	for _, s := range a.Synapses {
		aGenes[s.Innovation] = s.Weight
		if s.Innovation > aMax {
			aMax = s.Innovation
		}
	}
	bGenes := make(map[int64]float64, len(b.Synapses))
	var bMax int64
	for _, s := range b.Synapses {
		bGenes[s.Innovation] = s.Weight
		if s.Innovation > bMax {
			bMax = s.Innovation
		}
	}

	var excess, disjoint, matching int
	weightDiff := 0.0
	count := func(genes map[int64]float64, others map[int64]float64, otherMax int64) {
		for innovation := range genes {
			if _, ok := others[innovation]; ok {
				continue
			}
			if innovation > otherMax {
				excess++
			} else {
				disjoint++
			}
		}
	}
	count(aGenes, bGenes, bMax)
	count(bGenes, aGenes, aMax)
	for innovation, w := range aGenes {
		if other, ok := bGenes[innovation]; ok {
			matching++
			weightDiff += math.Abs(w - other)
		}
	}

	n := float64(max(len(a.Synapses), len(b.Synapses)))
	if len(a.Synapses) < 20 && len(b.Synapses) < 20 {
		n = 1
	}
	meanWeight := 0.0
	if matching > 0 {
		meanWeight = weightDiff / float64(matching)
	}
	return c.Excess*float64(excess)/n + c.Disjoint*float64(disjoint)/n + c.Weight*meanWeight
}
