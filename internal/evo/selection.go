package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gamelearn/internal/model"
)

// Selector chooses parents from ranked genomes for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if rng == nil {
		return model.Genome{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Genome{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Genome, nil
}

// TournamentSelector samples candidates and picks the best fitness among them.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if rng == nil {
		return model.Genome{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Genome{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	if poolSize < eliteCount {
		poolSize = eliteCount
	}
	if poolSize > len(ranked) {
		poolSize = len(ranked)
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best.Genome, nil
}

func ResolveSelector(name string) (Selector, error) {
	switch name {
	case "", "tournament":
		return TournamentSelector{}, nil
	case "elite":
		return EliteSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selector: %s", name)
	}
}

type speciesQuota struct {
	Species *Species
	Count   int
}

// buildSpeciesOffspringPlan splits totalOffspring across species in
// proportion to their shared fitness, the mean fitness of their members.
// Non-finite fitness counts as one below the worst finite fitness. Species
// without a finite member get no offspring.
func buildSpeciesOffspringPlan(species []*Species, totalOffspring int) []speciesQuota {
	if totalOffspring <= 0 {
		return nil
	}
	bred := make([]*Species, 0, len(species))
	for _, sp := range species {
		if len(finiteScored(sp.Members)) > 0 {
			bred = append(bred, sp)
		}
	}
	species = bred
	if len(species) == 0 {
		return nil
	}
	floor := math.Inf(1)
	for _, sp := range species {
		for _, item := range sp.Members {
			if !math.IsInf(item.Fitness, 0) && !math.IsNaN(item.Fitness) && item.Fitness < floor {
				floor = item.Fitness
			}
		}
	}
	if math.IsInf(floor, 1) {
		floor = 0
	}
	floor--

	scores := make([]float64, len(species))
	minMean := 0.0
	for i, sp := range species {
		sum := 0.0
		for _, item := range sp.Members {
			f := item.Fitness
			if math.IsInf(f, 0) || math.IsNaN(f) {
				f = floor
			}
			sum += f
		}
		scores[i] = sum / float64(len(sp.Members))
		if i == 0 || scores[i] < minMean {
			minMean = scores[i]
		}
	}
	shift := 0.0
	if minMean <= 0 {
		shift = -minMean + 1e-9
	}
	totalScore := 0.0
	for i := range scores {
		scores[i] += shift
		totalScore += scores[i]
	}
	if totalScore <= 0 {
		for i := range scores {
			scores[i] = 1.0
		}
		totalScore = float64(len(scores))
	}

	type alloc struct {
		idx       int
		count     int
		remainder float64
	}
	allocs := make([]alloc, 0, len(species))
	assigned := 0
	for i := range species {
		share := scores[i] / totalScore * float64(totalOffspring)
		base := int(math.Floor(share))
		allocs = append(allocs, alloc{idx: i, count: base, remainder: share - float64(base)})
		assigned += base
	}
	left := totalOffspring - assigned
	sort.SliceStable(allocs, func(i, j int) bool {
		return allocs[i].remainder > allocs[j].remainder
	})
	for i := 0; i < left; i++ {
		allocs[i%len(allocs)].count++
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].idx < allocs[j].idx })

	out := make([]speciesQuota, 0, len(allocs))
	for _, item := range allocs {
		if item.count <= 0 {
			continue
		}
		out = append(out, speciesQuota{Species: species[item.idx], Count: item.count})
	}
	return out
}
