package evo

import (
	"fmt"
	"math"
	"sort"

	"gamelearn/internal/genotype"
	"gamelearn/internal/model"
)

// SpeciationStats captures per-generation species partitioning diagnostics.
type SpeciationStats struct {
	SpeciesCount       int
	TargetSpeciesCount int
	Threshold          float64
	MeanSpeciesSize    float64
	LargestSpeciesSize int
	CulledSpecies      int
	CulledGenomes      int
}

type Species struct {
	Key            string
	Representative model.Genome
	// Members is sorted by fitness, best first.
	Members      []ScoredGenome
	BestFitness  float64
	LastImproved int
	Created      int
}

// AdaptiveSpeciation keeps species alive across generations through their
// representatives and nudges the compatibility threshold toward a target
// species count each generation.
type AdaptiveSpeciation struct {
	TargetSpeciesCount int
	Threshold          float64
	MinThreshold       float64
	MaxThreshold       float64
	AdjustStep         float64
	Coefficients       CompatibilityCoefficients
	// StagnationLimit removes a species after that many generations without
	// improvement. Zero disables culling.
	StagnationLimit int

	species []*Species
	nextKey int
}

func NewAdaptiveSpeciation(populationSize int) *AdaptiveSpeciation {
	target := int(math.Sqrt(float64(populationSize)))
	if target < 2 {
		target = 2
	}
	return &AdaptiveSpeciation{
		TargetSpeciesCount: target,
		Threshold:          3.0,
		MinThreshold:       0.3,
		MaxThreshold:       10.0,
		AdjustStep:         0.3,
		Coefficients:       DefaultCompatibility(),
		StagnationLimit:    15,
	}
}

// Assign places every genome in the nearest existing species within the
// threshold, or founds a new one. scored must be ranked best first. Species
// that stagnated are dropped unless they hold the champion.
func (s *AdaptiveSpeciation) Assign(scored []ScoredGenome, generation int) ([]*Species, SpeciationStats) {
	for _, sp := range s.species {
		sp.Members = sp.Members[:0]
	}
	for _, item := range scored {
		var best *Species
		bestDistance := math.MaxFloat64
		for _, sp := range s.species {
			dist := CompatibilityDistance(item.Genome, sp.Representative, s.Coefficients)
			if dist < bestDistance {
				bestDistance = dist
				best = sp
			}
		}
		if best == nil || bestDistance > s.Threshold {
			s.nextKey++
			best = &Species{
				Key:            fmt.Sprintf("sp-%03d", s.nextKey),
				Representative: genotype.CloneGenome(item.Genome),
				BestFitness:    math.Inf(-1),
				LastImproved:   generation,
				Created:        generation,
			}
			s.species = append(s.species, best)
		}
		best.Members = append(best.Members, item)
	}

	championKey := ""
	alive := make([]*Species, 0, len(s.species))
	stats := SpeciationStats{TargetSpeciesCount: s.TargetSpeciesCount}
	for _, sp := range s.species {
		if len(sp.Members) == 0 {
			continue
		}
		sort.SliceStable(sp.Members, func(i, j int) bool { return sp.Members[i].Fitness > sp.Members[j].Fitness })
		if top := sp.Members[0].Fitness; top > sp.BestFitness {
			sp.BestFitness = top
			sp.LastImproved = generation
		}
		sp.Representative = genotype.CloneGenome(sp.Members[0].Genome)
		if len(scored) > 0 && championKey == "" && sp.Members[0].Genome.ID == scored[0].Genome.ID {
			championKey = sp.Key
		}
		alive = append(alive, sp)
	}

	survivors := alive[:0:0]
	for _, sp := range alive {
		stagnant := s.StagnationLimit > 0 && generation-sp.LastImproved >= s.StagnationLimit
		if stagnant && sp.Key != championKey {
			stats.CulledSpecies++
			stats.CulledGenomes += len(sp.Members)
			continue
		}
		survivors = append(survivors, sp)
	}
	s.species = survivors

	if len(alive) > s.TargetSpeciesCount {
		s.Threshold = math.Min(s.MaxThreshold, s.Threshold+s.AdjustStep)
	} else if len(alive) < s.TargetSpeciesCount {
		s.Threshold = math.Max(s.MinThreshold, s.Threshold-s.AdjustStep)
	}

	total := 0
	for _, sp := range survivors {
		total += len(sp.Members)
		if len(sp.Members) > stats.LargestSpeciesSize {
			stats.LargestSpeciesSize = len(sp.Members)
		}
	}
	stats.SpeciesCount = len(survivors)
	stats.Threshold = s.Threshold
	if len(survivors) > 0 {
		stats.MeanSpeciesSize = float64(total) / float64(len(survivors))
	}
	out := make([]*Species, len(survivors))
	copy(out, survivors)
	return out, stats
}
