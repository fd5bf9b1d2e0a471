package platform

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gamelearn/internal/evo"
	"gamelearn/internal/genotype"
	"gamelearn/internal/model"
	"gamelearn/internal/scape"
	"gamelearn/internal/telemetry"
)

type NEATConfig struct {
	RunID string
	Scape string
	// Generations is the number of generations evaluated by this call.
	Generations int
	// FitnessGoal stops the run once a champion reaches it. Zero disables it.
	FitnessGoal float64
	// Resume continues the population persisted under RunID.
	Resume bool
	// Trainer is passed to evo.NewTrainer. Inputs, Outputs and Evaluator are
	// derived from the scape when left zero.
	Trainer evo.Config
}

type NEATResult struct {
	RunID            string
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	Lineage          []model.LineageRecord
	Champion         evo.ScoredGenome
	GoalReached      bool
	// Generation is the index of the next generation to evaluate.
	Generation int
}

func (p *Polis) RunNEAT(ctx context.Context, cfg NEATConfig) (NEATResult, error) {
	if cfg.Generations <= 0 {
		return NEATResult{}, fmt.Errorf("generations must be > 0, got %d", cfg.Generations)
	}
	if cfg.Resume && cfg.RunID == "" {
		return NEATResult{}, fmt.Errorf("resume requires a run id")
	}
	info, factory, err := scape.Lookup(cfg.Scape)
	if err != nil {
		return NEATResult{}, err
	}
	runID, err := p.beginRun(cfg.RunID, "neat")
	if err != nil {
		return NEATResult{}, err
	}
	defer p.endRun(runID)
	logger := p.logger.With("run_id", runID, "scape", cfg.Scape)

	trainerCfg := cfg.Trainer
	spec := factory().Spec()
	if trainerCfg.Inputs == 0 {
		trainerCfg.Inputs = spec.ObservationSize
	}
	if trainerCfg.Outputs == 0 {
		trainerCfg.Outputs = spec.ActionSize
	}
	if trainerCfg.Genome.OutputActivation == "" {
		trainerCfg.Genome.OutputActivation = info.OutputActivation
	}
	if trainerCfg.Evaluator == nil {
		trainerCfg.Evaluator = evo.ScapeEvaluator{Scape: cfg.Scape}
	}
	if trainerCfg.Logger == nil {
		trainerCfg.Logger = logger
	}
	trainer, err := evo.NewTrainer(trainerCfg)
	if err != nil {
		return NEATResult{}, err
	}

	result := NEATResult{RunID: runID}
	result.Champion.Fitness = math.Inf(-1)
	if cfg.Resume {
		if err := p.restoreNEAT(ctx, runID, trainer, &result); err != nil {
			return NEATResult{}, err
		}
	} else {
		result.Lineage = append(result.Lineage, trainer.SeedLineage()...)
	}

	logger.Info("neat run started", "generation", trainer.Generation(), "population", trainerCfg.PopulationSize)
	for i := 0; i < cfg.Generations; i++ {
		gen, err := trainer.Step(ctx)
		if err != nil {
			return NEATResult{}, fmt.Errorf("generation %d: %w", trainer.Generation(), err)
		}
		result.BestByGeneration = append(result.BestByGeneration, gen.Diagnostics.BestFitness)
		result.Diagnostics = append(result.Diagnostics, gen.Diagnostics)
		result.Lineage = append(result.Lineage, gen.Lineage...)
		if gen.Champion.Genome.Fitness > result.Champion.Fitness {
			result.Champion = evo.ScoredGenome{
				Genome:  gen.Champion.Genome,
				Fitness: gen.Champion.Genome.Fitness,
				Trace:   gen.Champion.Trace,
			}
		}
		if err := p.output.WriteGeneration(gen.Diagnostics, speciesRows(gen)); err != nil {
			return NEATResult{}, err
		}
		logger.Info("generation evaluated",
			"generation", gen.Generation,
			"best_fitness", gen.Diagnostics.BestFitness,
			"species", gen.Diagnostics.SpeciesCount,
		)
		if cfg.FitnessGoal != 0 && gen.Champion.Genome.Fitness >= cfg.FitnessGoal {
			result.GoalReached = true
			logger.Info("fitness goal reached", "generation", gen.Generation, "fitness", gen.Champion.Genome.Fitness)
			break
		}
	}
	result.Generation = trainer.Generation()

	if err := p.persistNEAT(ctx, cfg, trainer, result); err != nil {
		return NEATResult{}, err
	}
	if result.Champion.Genome.ID != "" {
		if err := p.output.WriteChampion(result.Champion.Genome); err != nil {
			return NEATResult{}, err
		}
	}
	logger.Info("neat run finished", "generations", len(result.Diagnostics), "best_fitness", result.Champion.Fitness)
	return result, nil
}

// restoreNEAT loads the persisted population and history of runID into
// trainer and result.
func (p *Polis) restoreNEAT(ctx context.Context, runID string, trainer *evo.Trainer, result *NEATResult) error {
	population, ok, err := p.store.GetPopulation(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("population not found: %s", runID)
	}
	genomes := make([]model.Genome, 0, len(population.GenomeIDs))
	for _, id := range population.GenomeIDs {
		genome, ok, err := p.store.GetGenome(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("genome not found: %s", id)
		}
		genome.ID = strings.TrimPrefix(genome.ID, runID+"/")
		genomes = append(genomes, genome)
	}
	if err := trainer.Restore(genomes, population.Generation); err != nil {
		return err
	}

	if diagnostics, ok, err := p.store.GetGenerationDiagnostics(ctx, runID); err != nil {
		return err
	} else if ok {
		result.Diagnostics = diagnostics
		for _, d := range diagnostics {
			result.BestByGeneration = append(result.BestByGeneration, d.BestFitness)
		}
	}
	if lineage, ok, err := p.store.GetLineage(ctx, runID); err != nil {
		return err
	} else if ok {
		result.Lineage = lineage
	}
	if run, ok, err := p.store.GetRun(ctx, runID); err != nil {
		return err
	} else if ok && run.ArtifactID != "" {
		champion, found, err := p.store.GetGenome(ctx, run.ArtifactID)
		if err != nil {
			return err
		}
		if found {
			champion.ID = strings.TrimPrefix(champion.ID, runID+"/")
			result.Champion = evo.ScoredGenome{Genome: champion, Fitness: champion.Fitness}
		}
	}
	return nil
}

// persistNEAT saves the next population, the champion and the run history.
// Genomes are keyed by run so runs never overwrite each other.
func (p *Polis) persistNEAT(ctx context.Context, cfg NEATConfig, trainer *evo.Trainer, result NEATResult) error {
	runID := result.RunID
	population := trainer.Population()
	ids := make([]string, 0, len(population))
	for _, genome := range population {
		stored := genotype.CloneGenomeWithID(genome, genomeKey(runID, genome.ID))
		if err := p.store.SaveGenome(ctx, stored); err != nil {
			return err
		}
		ids = append(ids, stored.ID)
	}
	if err := p.store.SavePopulation(ctx, model.Population{
		VersionedRecord: model.CurrentVersion(),
		ID:              runID,
		GenomeIDs:       ids,
		Generation:      result.Generation,
	}); err != nil {
		return err
	}

	championKey := ""
	if result.Champion.Genome.ID != "" {
		champion := genotype.CloneGenomeWithID(result.Champion.Genome, genomeKey(runID, "champion"))
		if err := p.store.SaveGenome(ctx, champion); err != nil {
			return err
		}
		championKey = champion.ID
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return err
	}
	if err := p.store.SaveLineage(ctx, runID, result.Lineage); err != nil {
		return err
	}
	return p.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: model.CurrentVersion(),
		ID:              runID,
		Kind:            "neat",
		Scape:           cfg.Scape,
		Seed:            cfg.Trainer.Seed,
		Steps:           len(result.Diagnostics),
		BestScore:       result.Champion.Fitness,
		ArtifactID:      championKey,
	})
}

func genomeKey(runID, genomeID string) string {
	return runID + "/" + genomeID
}

func speciesRows(gen evo.GenerationResult) []telemetry.SpeciesRow {
	rows := make([]telemetry.SpeciesRow, 0, len(gen.Species))
	for _, sp := range gen.Species {
		rows = append(rows, telemetry.SpeciesRow{
			Generation:  gen.Generation,
			Key:         sp.Key,
			Size:        sp.Size,
			MeanFitness: sp.MeanFitness,
			BestFitness: sp.BestFitness,
		})
	}
	return rows
}
