package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gamelearn/internal/evo"
	"gamelearn/internal/model"
	"gamelearn/internal/ppo"
	"gamelearn/internal/scape"
	"gamelearn/internal/storage"
	"gamelearn/internal/telemetry"
)

func newTestPolis(t *testing.T, output *telemetry.OutputManager) *Polis {
	t.Helper()
	p := NewPolis(Config{Store: storage.NewMemoryStore(), Output: output})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func smallNEATConfig(runID string) NEATConfig {
	trainer := evo.DefaultConfig()
	trainer.PopulationSize = 16
	trainer.Workers = 2
	trainer.Seed = 7
	return NEATConfig{
		RunID:       runID,
		Scape:       scape.XORName,
		Generations: 3,
		Trainer:     trainer,
	}
}

func smallPPOConfig(runID string) PPOConfig {
	trainer := ppo.DefaultConfig()
	trainer.MinibatchSize = 32
	trainer.Epochs = 2
	return PPOConfig{
		RunID:                 runID,
		Scape:                 scape.TargetReachName,
		Agents:                3,
		Iterations:            2,
		EpisodesPerAgent:      2,
		Seed:                  11,
		Hidden:                []int{8},
		Activation:            "tanh",
		InitLogStd:            -0.5,
		NormalizeObservations: true,
		Trainer:               trainer,
	}
}

func TestPolisRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if _, err := p.RunNEAT(context.Background(), smallNEATConfig("run-1")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := NewPolis(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestPolisRejectsDuplicateActiveRun(t *testing.T) {
	p := newTestPolis(t, nil)
	runID, err := p.beginRun("run-1", "neat")
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if _, err := p.beginRun(runID, "neat"); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
	p.endRun(runID)
	if _, err := p.beginRun(runID, "neat"); err != nil {
		t.Fatalf("begin run after end: %v", err)
	}

	generated, err := p.beginRun("", "ppo")
	if err != nil {
		t.Fatalf("begin generated run: %v", err)
	}
	if !strings.HasPrefix(generated, "ppo-") {
		t.Fatalf("unexpected generated run id: %s", generated)
	}
}

func TestRunNEATPersistsRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	output, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatalf("output manager: %v", err)
	}
	p := newTestPolis(t, output)

	result, err := p.RunNEAT(ctx, smallNEATConfig("neat-1"))
	if err != nil {
		t.Fatalf("run neat: %v", err)
	}
	if len(result.Diagnostics) != 3 || len(result.BestByGeneration) != 3 || result.Generation != 3 {
		t.Fatalf("unexpected result shape: diagnostics=%d generation=%d", len(result.Diagnostics), result.Generation)
	}
	if len(result.Lineage) != 16*4 {
		t.Fatalf("unexpected lineage size: got=%d want=%d", len(result.Lineage), 16*4)
	}
	if result.Champion.Genome.ID == "" || result.Champion.Fitness <= 0 {
		t.Fatalf("unexpected champion: %+v", result.Champion)
	}

	store := p.Store()
	population, ok, err := store.GetPopulation(ctx, "neat-1")
	if err != nil || !ok {
		t.Fatalf("get population: ok=%t err=%v", ok, err)
	}
	if population.Generation != 3 || len(population.GenomeIDs) != 16 {
		t.Fatalf("unexpected population: %+v", population)
	}
	if _, ok, err := store.GetGenome(ctx, population.GenomeIDs[0]); err != nil || !ok {
		t.Fatalf("population genome missing: ok=%t err=%v", ok, err)
	}
	run, ok, err := store.GetRun(ctx, "neat-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.Kind != "neat" || run.Steps != 3 || run.BestScore != result.Champion.Fitness {
		t.Fatalf("unexpected run record: %+v", run)
	}
	champion, ok, err := store.GetGenome(ctx, run.ArtifactID)
	if err != nil || !ok || champion.Fitness != result.Champion.Fitness {
		t.Fatalf("unexpected champion record: %+v ok=%t err=%v", champion, ok, err)
	}

	if err := output.Close(); err != nil {
		t.Fatalf("close output: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "generations.csv"))
	if err != nil {
		t.Fatalf("read generations.csv: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Fatalf("unexpected generations.csv lines: got=%d want=4", lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "champion.json")); err != nil {
		t.Fatalf("champion.json missing: %v", err)
	}
}

func TestRunNEATStopsAtFitnessGoal(t *testing.T) {
	p := newTestPolis(t, nil)
	cfg := smallNEATConfig("goal")
	cfg.Generations = 10
	cfg.FitnessGoal = 5
	cfg.Trainer.Evaluator = evo.EvaluatorFunc(func(context.Context, model.Genome) (float64, scape.Trace, error) {
		return 6, nil, nil
	})
	result, err := p.RunNEAT(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run neat: %v", err)
	}
	if !result.GoalReached || len(result.Diagnostics) != 1 {
		t.Fatalf("expected stop after first generation: reached=%t generations=%d", result.GoalReached, len(result.Diagnostics))
	}
}

func TestRunNEATResume(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t, nil)
	if _, err := p.RunNEAT(ctx, smallNEATConfig("resume")); err != nil {
		t.Fatalf("first run: %v", err)
	}

	cfg := smallNEATConfig("resume")
	cfg.Generations = 2
	cfg.Resume = true
	result, err := p.RunNEAT(ctx, cfg)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if result.Generation != 5 || len(result.Diagnostics) != 5 {
		t.Fatalf("unexpected resumed result: generation=%d diagnostics=%d", result.Generation, len(result.Diagnostics))
	}
	if result.Diagnostics[3].Generation != 3 || result.Diagnostics[4].Generation != 4 {
		t.Fatalf("resumed generations out of order: %+v", result.Diagnostics[3:])
	}
	lineage, _, _ := p.Store().GetLineage(ctx, "resume")
	if len(lineage) != 16*6 {
		t.Fatalf("unexpected merged lineage size: got=%d want=%d", len(lineage), 16*6)
	}

	missing := smallNEATConfig("never-ran")
	missing.Resume = true
	if _, err := p.RunNEAT(ctx, missing); err == nil {
		t.Fatal("expected missing population error")
	}
}

func TestRunNEATUnknownScape(t *testing.T) {
	p := newTestPolis(t, nil)
	cfg := smallNEATConfig("x")
	cfg.Scape = "missing"
	if _, err := p.RunNEAT(context.Background(), cfg); !errors.Is(err, scape.ErrScapeNotFound) {
		t.Fatalf("expected ErrScapeNotFound, got %v", err)
	}
}

func TestRunPPOPersistsPolicy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	output, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatalf("output manager: %v", err)
	}
	p := newTestPolis(t, output)

	result, err := p.RunPPO(ctx, smallPPOConfig("ppo-1"))
	if err != nil {
		t.Fatalf("run ppo: %v", err)
	}
	if len(result.Updates) != 2 || result.Updates[0].Update != 1 || result.Updates[1].Update != 2 {
		t.Fatalf("unexpected updates: %+v", result.Updates)
	}
	for _, u := range result.Updates {
		if u.Episodes != 6 || u.Samples < 6 {
			t.Fatalf("unexpected rollout size: %+v", u)
		}
	}
	if result.Policy.Updates != 2 || len(result.Policy.ObservationMin) != 2 {
		t.Fatalf("unexpected snapshot: updates=%d bounds=%v", result.Policy.Updates, result.Policy.ObservationMin)
	}

	store := p.Store()
	snapshot, ok, err := store.GetPolicy(ctx, result.Policy.ID)
	if err != nil || !ok {
		t.Fatalf("get policy: ok=%t err=%v", ok, err)
	}
	if _, err := ppo.PolicyFromSnapshot(snapshot); err != nil {
		t.Fatalf("restore policy: %v", err)
	}
	history, ok, err := store.GetUpdateHistory(ctx, "ppo-1")
	if err != nil || !ok || len(history) != 2 {
		t.Fatalf("unexpected update history: %+v ok=%t err=%v", history, ok, err)
	}
	run, ok, err := store.GetRun(ctx, "ppo-1")
	if err != nil || !ok || run.Kind != "ppo" || run.ArtifactID != result.Policy.ID {
		t.Fatalf("unexpected run record: %+v ok=%t err=%v", run, ok, err)
	}

	if err := output.Close(); err != nil {
		t.Fatalf("close output: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "updates.csv"))
	if err != nil {
		t.Fatalf("read updates.csv: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Fatalf("unexpected updates.csv lines: got=%d want=3", lines)
	}
}

func TestRunPPOResume(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t, nil)
	if _, err := p.RunPPO(ctx, smallPPOConfig("ppo-resume")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	cfg := smallPPOConfig("ppo-resume")
	cfg.Iterations = 1
	cfg.Resume = true
	result, err := p.RunPPO(ctx, cfg)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if len(result.Updates) != 3 || result.Updates[2].Update != 3 || result.Policy.Updates != 3 {
		t.Fatalf("unexpected resumed updates: %+v policy updates=%d", result.Updates, result.Policy.Updates)
	}
}

func TestRunPPOValidatesConfig(t *testing.T) {
	p := newTestPolis(t, nil)
	cfg := smallPPOConfig("bad")
	cfg.Agents = 0
	if _, err := p.RunPPO(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error")
	}
	cfg = smallPPOConfig("")
	cfg.Resume = true
	if _, err := p.RunPPO(context.Background(), cfg); err == nil {
		t.Fatal("expected resume without run id error")
	}
}

func TestRunPPOHonorsContext(t *testing.T) {
	p := newTestPolis(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.RunPPO(ctx, smallPPOConfig("cancelled")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
