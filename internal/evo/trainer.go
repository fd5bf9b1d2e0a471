package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"gamelearn/internal/agent"
	"gamelearn/internal/genotype"
	"gamelearn/internal/model"
	"gamelearn/internal/nn"
	"gamelearn/internal/scape"
)

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
	Trace   scape.Trace
}

type Evaluator interface {
	Evaluate(ctx context.Context, genome model.Genome) (float64, scape.Trace, error)
}

type EvaluatorFunc func(ctx context.Context, genome model.Genome) (float64, scape.Trace, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, genome model.Genome) (float64, scape.Trace, error) {
	return f(ctx, genome)
}

// ScapeEvaluator compiles a genome and scores it on a registered scape.
type ScapeEvaluator struct {
	Scape string
}

func (e ScapeEvaluator) Evaluate(ctx context.Context, genome model.Genome) (float64, scape.Trace, error) {
	network, err := nn.Compile(genome)
	if err != nil {
		return 0, nil, fmt.Errorf("compile genome %s: %w", genome.ID, err)
	}
	decider, err := agent.NewGenomeDecider(network)
	if err != nil {
		return 0, nil, err
	}
	fitness, trace, err := scape.Evaluate(ctx, e.Scape, decider)
	if err != nil {
		return 0, nil, fmt.Errorf("evaluate genome %s: %w", genome.ID, err)
	}
	return float64(fitness), trace, nil
}

type SpeciesMetrics struct {
	Key         string  `json:"key"`
	Size        int     `json:"size"`
	MeanFitness float64 `json:"mean_fitness"`
	BestFitness float64 `json:"best_fitness"`
}

type GenerationResult struct {
	Generation int
	// Champion is the best genome of the evaluated generation. Its
	// Genome.Fitness holds the raw evaluation result.
	Champion    ScoredGenome
	Ranked      []ScoredGenome
	Diagnostics model.GenerationDiagnostics
	Species     []SpeciesMetrics
	Lineage     []model.LineageRecord
}

type Config struct {
	Evaluator     Evaluator
	Inputs        int
	Outputs       int
	Genome        GenomeConfig
	Mutation      MutationRates
	Selector      Selector
	Postprocessor FitnessPostprocessor
	Compatibility CompatibilityCoefficients

	PopulationSize int
	EliteCount     int
	// SurvivalFraction is the share of each species allowed to breed.
	SurvivalFraction float64
	CrossoverRate    float64
	TargetSpecies    int
	// StagnationLimit is in generations. Zero disables culling.
	StagnationLimit int

	Workers int
	Seed    int64
	Logger  *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Mutation:         DefaultMutationRates(),
		Compatibility:    DefaultCompatibility(),
		PopulationSize:   50,
		EliteCount:       1,
		SurvivalFraction: 0.5,
		CrossoverRate:    0.75,
		StagnationLimit:  15,
		Workers:          4,
	}
}

// Trainer runs NEAT one generation at a time. Stopping is up to the caller.
type Trainer struct {
	cfg        Config
	rng        *rand.Rand
	logger     *slog.Logger
	tracker    *InnovationTracker
	speciation *AdaptiveSpeciation
	mutator    *Mutator

	population  []model.Genome
	generation  int
	seedLineage []model.LineageRecord
}

func NewTrainer(cfg Config) (*Trainer, error) {
	if cfg.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if cfg.Inputs <= 0 || cfg.Outputs <= 0 {
		return nil, fmt.Errorf("inputs and outputs must be > 0, got inputs=%d outputs=%d", cfg.Inputs, cfg.Outputs)
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.SurvivalFraction <= 0 || cfg.SurvivalFraction > 1 {
		return nil, fmt.Errorf("survival fraction must be in (0, 1], got %f", cfg.SurvivalFraction)
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate must be in [0, 1], got %f", cfg.CrossoverRate)
	}
	if (cfg.Mutation.PerturbWeights > 0 || cfg.Mutation.PerturbBiases > 0) && cfg.Mutation.WeightPower <= 0 {
		return nil, fmt.Errorf("weight power must be > 0 when perturbation is enabled")
	}
	if cfg.StagnationLimit < 0 {
		return nil, fmt.Errorf("stagnation limit must be >= 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.Genome = cfg.Genome.withDefaults()

	rng := rand.New(rand.NewSource(cfg.Seed))
	tracker := NewInnovationTracker()
	speciation := NewAdaptiveSpeciation(cfg.PopulationSize)
	speciation.Coefficients = cfg.Compatibility
	speciation.StagnationLimit = cfg.StagnationLimit
	if cfg.TargetSpecies > 0 {
		speciation.TargetSpeciesCount = cfg.TargetSpecies
	}

	t := &Trainer{
		cfg:        cfg,
		rng:        rng,
		logger:     logger,
		tracker:    tracker,
		speciation: speciation,
		mutator:    NewMutator(rng, tracker, cfg.Mutation, cfg.Genome.HiddenActivation),
		population: make([]model.Genome, 0, cfg.PopulationSize),
	}
	for i := 0; i < cfg.PopulationSize; i++ {
		genome, err := NewMinimalGenome(genomeID(0, i), cfg.Inputs, cfg.Outputs, cfg.Genome, tracker, rng)
		if err != nil {
			return nil, err
		}
		t.population = append(t.population, genome)
		t.seedLineage = append(t.seedLineage, model.LineageRecord{
			VersionedRecord: model.CurrentVersion(),
			GenomeID:        genome.ID,
			Generation:      0,
			Operation:       "seed",
			Fingerprint:     ComputeGenomeSignature(genome).Fingerprint,
		})
	}
	return t, nil
}

// Restore replaces the population, e.g. with genomes loaded from a store.
func (t *Trainer) Restore(population []model.Genome, generation int) error {
	if len(population) == 0 {
		return errors.New("population is empty")
	}
	if generation < 0 {
		return fmt.Errorf("generation must be >= 0, got %d", generation)
	}
	seen := make(map[string]struct{}, len(population))
	restored := make([]model.Genome, 0, len(population))
	for _, genome := range population {
		if _, dup := seen[genome.ID]; dup {
			return fmt.Errorf("duplicate genome id %s", genome.ID)
		}
		seen[genome.ID] = struct{}{}
		if err := checkInterface(genome, t.cfg.Inputs, t.cfg.Outputs); err != nil {
			return fmt.Errorf("genome %s: %w", genome.ID, err)
		}
		t.tracker.Observe(genome)
		restored = append(restored, genotype.CloneGenome(genome))
	}
	t.population = restored
	t.generation = generation
	t.seedLineage = nil
	return nil
}

func (t *Trainer) Generation() int {
	return t.generation
}

func (t *Trainer) Population() []model.Genome {
	out := make([]model.Genome, len(t.population))
	for i, genome := range t.population {
		out[i] = genotype.CloneGenome(genome)
	}
	return out
}

// SeedLineage returns the lineage records of the initial population.
func (t *Trainer) SeedLineage() []model.LineageRecord {
	return append([]model.LineageRecord(nil), t.seedLineage...)
}

// Evaluate scores the current population in parallel. Non-finite fitness is
// recorded as -Inf.
func (t *Trainer) Evaluate(ctx context.Context) ([]ScoredGenome, error) {
	type job struct {
		idx    int
		genome model.Genome
	}
	type result struct {
		idx    int
		scored ScoredGenome
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(t.population))

	workerCount := t.cfg.Workers
	if workerCount > len(t.population) {
		workerCount = len(t.population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				fitness, trace, err := t.cfg.Evaluator.Evaluate(ctx, j.genome)
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
					fitness = math.Inf(-1)
				}
				genome := genotype.CloneGenome(j.genome)
				genome.Fitness = fitness
				results <- result{idx: j.idx, scored: ScoredGenome{Genome: genome, Fitness: fitness, Trace: trace}}
			}
		}()
	}

	for i := range t.population {
		jobs <- job{idx: i, genome: t.population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scored := make([]ScoredGenome, len(t.population))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scored[res.idx] = res.scored
	}
	return scored, nil
}

// Step evaluates the current generation, speciates it and replaces the
// population with the next one. The champion survives unmodified.
func (t *Trainer) Step(ctx context.Context) (GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return GenerationResult{}, err
	}
	scored, err := t.Evaluate(ctx)
	if err != nil {
		return GenerationResult{}, err
	}
	ranked := t.cfg.Postprocessor.Process(scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})

	species, stats := t.speciation.Assign(ranked, t.generation)
	speciesByGenomeID := make(map[string]string, len(ranked))
	for _, sp := range species {
		for _, member := range sp.Members {
			speciesByGenomeID[member.Genome.ID] = sp.Key
		}
	}

	next, lineage, err := t.nextGeneration(ctx, ranked, species, speciesByGenomeID)
	if err != nil {
		return GenerationResult{}, err
	}

	result := GenerationResult{
		Generation:  t.generation,
		Champion:    ranked[0],
		Ranked:      ranked,
		Diagnostics: summarizeGeneration(ranked, t.generation, stats),
		Species:     summarizeSpecies(species),
		Lineage:     lineage,
	}
	t.logger.Debug("neat generation",
		"generation", t.generation,
		"best_fitness", result.Diagnostics.BestFitness,
		"mean_fitness", result.Diagnostics.MeanFitness,
		"species", stats.SpeciesCount,
		"threshold", stats.Threshold,
	)

	t.population = next
	t.generation++
	t.tracker.NextGeneration()
	return result, nil
}

func (t *Trainer) nextGeneration(ctx context.Context, ranked []ScoredGenome, species []*Species, speciesByGenomeID map[string]string) ([]model.Genome, []model.LineageRecord, error) {
	size := t.cfg.PopulationSize
	nextGen := t.generation + 1
	next := make([]model.Genome, 0, size)
	lineage := make([]model.LineageRecord, 0, size)

	finite := finiteScored(ranked)
	for i := 0; i < t.cfg.EliteCount && i < len(finite); i++ {
		elite := genotype.CloneGenome(finite[i].Genome)
		next = append(next, elite)
		lineage = append(lineage, model.LineageRecord{
			VersionedRecord: model.CurrentVersion(),
			GenomeID:        elite.ID,
			ParentID:        elite.ID,
			Generation:      nextGen,
			Operation:       "elite",
			SpeciesKey:      speciesByGenomeID[elite.ID],
			Fingerprint:     ComputeGenomeSignature(elite).Fingerprint,
		})
	}

	for _, quota := range buildSpeciesOffspringPlan(species, size-len(next)) {
		pool := t.survivors(quota.Species.Members)
		if len(pool) == 0 {
			continue
		}
		for i := 0; i < quota.Count && len(next) < size; i++ {
			child, record, err := t.breed(ctx, pool, quota.Species.Key, nextGen, len(next))
			if err != nil {
				return nil, nil, err
			}
			next = append(next, child)
			lineage = append(lineage, record)
		}
	}

	pool := t.survivors(ranked)
	for len(next) < size {
		if len(pool) == 0 {
			// Nothing scored finite, so there is no parent to breed from.
			genome, err := NewMinimalGenome(genomeID(nextGen, len(next)), t.cfg.Inputs, t.cfg.Outputs, t.cfg.Genome, t.tracker, t.rng)
			if err != nil {
				return nil, nil, err
			}
			next = append(next, genome)
			lineage = append(lineage, model.LineageRecord{
				VersionedRecord: model.CurrentVersion(),
				GenomeID:        genome.ID,
				Generation:      nextGen,
				Operation:       "seed",
				Fingerprint:     ComputeGenomeSignature(genome).Fingerprint,
			})
			continue
		}
		child, record, err := t.breed(ctx, pool, "", nextGen, len(next))
		if err != nil {
			return nil, nil, err
		}
		next = append(next, child)
		lineage = append(lineage, record)
	}
	return next, lineage, nil
}

// survivors returns the breeding pool of a ranked group: the leading
// SurvivalFraction of its finite members. -Inf genomes never breed.
func (t *Trainer) survivors(ranked []ScoredGenome) []ScoredGenome {
	ranked = finiteScored(ranked)
	if len(ranked) == 0 {
		return nil
	}
	keep := int(math.Ceil(float64(len(ranked)) * t.cfg.SurvivalFraction))
	if keep < 1 {
		keep = 1
	}
	if keep > len(ranked) {
		keep = len(ranked)
	}
	return ranked[:keep]
}

func (t *Trainer) breed(ctx context.Context, pool []ScoredGenome, speciesKey string, nextGen, index int) (model.Genome, model.LineageRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.Genome{}, model.LineageRecord{}, err
	}
	parent, err := t.cfg.Selector.PickParent(t.rng, pool, len(pool))
	if err != nil {
		return model.Genome{}, model.LineageRecord{}, err
	}

	operations := make([]string, 0, 4)
	child := genotype.CloneGenome(parent)
	mateID := ""
	if len(pool) > 1 && t.rng.Float64() < t.cfg.CrossoverRate {
		mate, err := t.cfg.Selector.PickParent(t.rng, pool, len(pool))
		if err != nil {
			return model.Genome{}, model.LineageRecord{}, err
		}
		if mate.ID != parent.ID {
			fitter, other := parent, mate
			if rankedFitness(pool, mate.ID) > rankedFitness(pool, parent.ID) {
				fitter, other = mate, parent
			}
			child = Crossover(fitter, other, t.rng)
			mateID = mate.ID
			operations = append(operations, "crossover")
		}
	}
	child.ID = genomeID(nextGen, index)
	child.Fitness = 0

	mutated, applied, err := t.mutator.Mutate(ctx, child)
	if err != nil {
		return model.Genome{}, model.LineageRecord{}, err
	}
	operations = append(operations, applied...)
	operation := strings.Join(operations, "+")
	if operation == "" {
		operation = "clone"
	}
	return mutated, model.LineageRecord{
		VersionedRecord: model.CurrentVersion(),
		GenomeID:        mutated.ID,
		ParentID:        parent.ID,
		MateID:          mateID,
		Generation:      nextGen,
		Operation:       operation,
		SpeciesKey:      speciesKey,
		Fingerprint:     ComputeGenomeSignature(mutated).Fingerprint,
	}, nil
}

func finiteScored(ranked []ScoredGenome) []ScoredGenome {
	out := make([]ScoredGenome, 0, len(ranked))
	for _, item := range ranked {
		if !isCulled(item.Fitness) {
			out = append(out, item)
		}
	}
	return out
}

func isCulled(fitness float64) bool {
	return math.IsNaN(fitness) || math.IsInf(fitness, 0)
}

func rankedFitness(pool []ScoredGenome, id string) float64 {
	for _, item := range pool {
		if item.Genome.ID == id {
			return item.Fitness
		}
	}
	return math.Inf(-1)
}

func genomeID(generation, index int) string {
	return fmt.Sprintf("g%04d-%03d", generation, index)
}

func checkInterface(genome model.Genome, inputs, outputs int) error {
	var gotIn, gotOut int
	for _, n := range genome.Neurons {
		switch n.Role {
		case model.RoleInput:
			gotIn++
		case model.RoleOutput:
			gotOut++
		}
	}
	if gotIn != inputs || gotOut != outputs {
		return fmt.Errorf("interface mismatch: inputs=%d outputs=%d got inputs=%d outputs=%d", inputs, outputs, gotIn, gotOut)
	}
	return nil
}

func summarizeGeneration(ranked []ScoredGenome, generation int, stats SpeciationStats) model.GenerationDiagnostics {
	if len(ranked) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	neurons := 0
	synapses := 0
	minFitness := ranked[0].Fitness
	fingerprints := make(map[string]struct{}, len(ranked))
	for _, item := range ranked {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		sig := ComputeGenomeSignature(item.Genome)
		fingerprints[sig.Fingerprint] = struct{}{}
		neurons += sig.Summary.TotalNeurons
		synapses += sig.Summary.EnabledSynapses
	}

	n := float64(len(ranked))
	return model.GenerationDiagnostics{
		Generation:           generation,
		BestFitness:          ranked[0].Fitness,
		MeanFitness:          total / n,
		MinFitness:           minFitness,
		SpeciesCount:         stats.SpeciesCount,
		FingerprintDiversity: len(fingerprints),
		SpeciationThreshold:  stats.Threshold,
		MeanNeurons:          float64(neurons) / n,
		MeanSynapses:         float64(synapses) / n,
		CulledGenomes:        stats.CulledGenomes,
	}
}

func summarizeSpecies(species []*Species) []SpeciesMetrics {
	out := make([]SpeciesMetrics, 0, len(species))
	for _, sp := range species {
		sum := 0.0
		for _, member := range sp.Members {
			sum += member.Fitness
		}
		out = append(out, SpeciesMetrics{
			Key:         sp.Key,
			Size:        len(sp.Members),
			MeanFitness: sum / float64(len(sp.Members)),
			BestFitness: sp.Members[0].Fitness,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
