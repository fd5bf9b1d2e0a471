package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"gamelearn/internal/config"
	"gamelearn/internal/platform"
	"gamelearn/internal/scape"
	"gamelearn/internal/storage"
	"gamelearn/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "ppo":
		return runPPO(ctx, args[1:])
	case "neat":
		return runNEAT(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "policy":
		return runPolicy(ctx, args[1:])
	case "scapes":
		for _, name := range scape.Names() {
			fmt.Println(name)
		}
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// storeFlags are shared by every command that opens the store. Values left
// unset fall back to the loaded configuration.
type storeFlags struct {
	configPath *string
	store      *string
	dbPath     *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "YAML config file overlaid on the defaults"),
		store:      fs.String("store", "", "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "", "sqlite database path"),
	}
}

func (f storeFlags) load() (*config.Config, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, err
	}
	if *f.store != "" {
		cfg.Store.Backend = *f.store
	}
	if *f.dbPath != "" {
		cfg.Store.SQLitePath = *f.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Store.Backend, cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return store, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	writeConfig := fs.String("write-config", "", "write the effective configuration to this YAML path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Store.Backend, cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	polis := platform.NewPolis(platform.Config{Store: store})
	if err := polis.Init(ctx); err != nil {
		return err
	}
	if *writeConfig != "" {
		if err := cfg.WriteYAML(*writeConfig); err != nil {
			return err
		}
		fmt.Printf("wrote config=%s\n", *writeConfig)
	}

	fmt.Printf("initialized store=%s\n", cfg.Store.Backend)
	return nil
}

func runPPO(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ppo", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id; generated when empty")
	resume := fs.Bool("resume", false, "continue the policy persisted under -run-id")
	scapeName := fs.String("scape", "", "scape name")
	agents := fs.Int("agents", 0, "concurrent rollout agents")
	iterations := fs.Int("iterations", 0, "collect-then-update rounds")
	episodes := fs.Int("episodes", 0, "episodes per agent per round")
	seed := fs.Int64("seed", 0, "random seed")
	outDir := fs.String("out", "", "telemetry output directory")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := visitedFlags(fs)

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	if setFlags["scape"] {
		cfg.PPO.Scape = *scapeName
	}
	if setFlags["agents"] {
		cfg.PPO.Agents = *agents
	}
	if setFlags["iterations"] {
		cfg.PPO.Iterations = *iterations
	}
	if setFlags["episodes"] {
		cfg.PPO.EpisodesPerAgent = *episodes
	}
	if setFlags["seed"] {
		cfg.PPO.Seed = *seed
	}
	if setFlags["out"] {
		cfg.Telemetry.OutputDir = *outDir
	}

	polis, cleanup, err := startPolis(ctx, cfg, *logLevel)
	if err != nil {
		return err
	}
	defer cleanup()

	ppoCfg := ppoConfigFrom(cfg)
	ppoCfg.RunID = strings.TrimSpace(*runID)
	ppoCfg.Resume = *resume
	result, err := polis.RunPPO(ctx, ppoCfg)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"run_id":           result.RunID,
			"updates":          len(result.Updates),
			"best_mean_return": result.BestMeanReturn,
			"eval_return":      result.EvalReturn,
			"policy_id":        result.Policy.ID,
		})
	}
	fmt.Printf("run_id=%s updates=%d best_mean_return=%.6f eval_return=%.6f policy=%s\n",
		result.RunID, len(result.Updates), result.BestMeanReturn, result.EvalReturn, result.Policy.ID)
	return nil
}

func runNEAT(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("neat", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id; generated when empty")
	resume := fs.Bool("resume", false, "continue the population persisted under -run-id")
	scapeName := fs.String("scape", "", "scape name")
	population := fs.Int("pop", 0, "population size")
	generations := fs.Int("gens", 0, "generations to evaluate")
	fitnessGoal := fs.Float64("fitness-goal", 0, "stop once the champion reaches this fitness; 0 disables")
	workers := fs.Int("workers", 0, "concurrent evaluation workers")
	seed := fs.Int64("seed", 0, "random seed")
	selector := fs.String("selector", "", "parent selector: tournament|elite")
	postprocessor := fs.String("postprocessor", "", "fitness postprocessor: none|size_proportional")
	outDir := fs.String("out", "", "telemetry output directory")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := visitedFlags(fs)

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	if setFlags["scape"] {
		cfg.NEAT.Scape = *scapeName
	}
	if setFlags["pop"] {
		cfg.NEAT.PopulationSize = *population
	}
	if setFlags["gens"] {
		cfg.NEAT.Generations = *generations
	}
	if setFlags["fitness-goal"] {
		cfg.NEAT.FitnessGoal = *fitnessGoal
	}
	if setFlags["workers"] {
		cfg.NEAT.Workers = *workers
	}
	if setFlags["seed"] {
		cfg.NEAT.Seed = *seed
	}
	if setFlags["selector"] {
		cfg.NEAT.Selector = *selector
	}
	if setFlags["postprocessor"] {
		cfg.NEAT.Postprocessor = *postprocessor
	}
	if setFlags["out"] {
		cfg.Telemetry.OutputDir = *outDir
	}

	neatCfg, err := neatConfigFrom(cfg)
	if err != nil {
		return err
	}
	neatCfg.RunID = strings.TrimSpace(*runID)
	neatCfg.Resume = *resume

	polis, cleanup, err := startPolis(ctx, cfg, *logLevel)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := polis.RunNEAT(ctx, neatCfg)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"run_id":             result.RunID,
			"generations":        len(result.Diagnostics),
			"next_generation":    result.Generation,
			"best_by_generation": result.BestByGeneration,
			"champion_id":        result.Champion.Genome.ID,
			"champion_fitness":   result.Champion.Fitness,
			"goal_reached":       result.GoalReached,
		})
	}
	fmt.Printf("run_id=%s generations=%d champion=%s fitness=%.6f goal_reached=%t\n",
		result.RunID, len(result.Diagnostics), result.Champion.Genome.ID, result.Champion.Fitness, result.GoalReached)
	return nil
}

// startPolis opens the configured store and telemetry output and returns an
// initialized polis. The cleanup closes both through the polis.
func startPolis(ctx context.Context, cfg *config.Config, logLevel string) (*platform.Polis, func(), error) {
	logger, err := newLogger(logLevel)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewStore(cfg.Store.Backend, cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	output, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		_ = output.Close()
		_ = storage.CloseIfSupported(store)
		return nil, nil, err
	}

	polis := platform.NewPolis(platform.Config{Store: store, Logger: logger, Output: output})
	if err := polis.Init(ctx); err != nil {
		_ = output.Close()
		_ = storage.CloseIfSupported(store)
		return nil, nil, err
	}
	cleanup := func() {
		if err := polis.Close(); err != nil {
			logger.Warn("close polis", "error", err)
		}
	}
	return polis, cleanup, nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	kind := fs.String("kind", "", "filter by run kind: ppo|neat")
	jsonOut := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if *kind != "" {
		filtered := runs[:0]
		for _, r := range runs {
			if r.Kind == *kind {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	if *jsonOut {
		return printJSON(runs)
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s kind=%s scape=%s seed=%d steps=%d best_score=%.6f artifact=%s\n",
			r.ID, r.Kind, r.Scape, r.Seed, r.Steps, r.BestScore, r.ArtifactID)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 0, "show only the last N updates; 0 shows all")
	jsonOut := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("history requires --run-id")
	}
	if *limit < 0 {
		return errors.New("limit must be >= 0")
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	updates, ok, err := store.GetUpdateHistory(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update history not found for run id: %s", *runID)
	}
	updates = lastN(updates, *limit)
	if len(updates) == 0 {
		fmt.Println("no updates")
		return nil
	}
	if *jsonOut {
		return printJSON(updates)
	}
	for _, u := range updates {
		fmt.Printf("update=%d samples=%d episodes=%d mean_return=%.6f policy_loss=%.6f value_loss=%.6f entropy=%.6f approx_kl=%.6f clip_fraction=%.4f epochs=%d early_stopped=%t explained_variance=%.4f\n",
			u.Update,
			u.Samples,
			u.Episodes,
			u.MeanReturn,
			u.PolicyLoss,
			u.ValueLoss,
			u.Entropy,
			u.ApproxKL,
			u.ClipFraction,
			u.EpochsRun,
			u.EarlyStopped,
			u.ExplainedVar,
		)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 0, "show only the last N generations; 0 shows all")
	jsonOut := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("diagnostics requires --run-id")
	}
	if *limit < 0 {
		return errors.New("limit must be >= 0")
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	diagnostics, ok, err := store.GetGenerationDiagnostics(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("diagnostics not found for run id: %s", *runID)
	}
	diagnostics = lastN(diagnostics, *limit)
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *jsonOut {
		return printJSON(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f species=%d fingerprints=%d threshold=%.4f mean_neurons=%.2f mean_synapses=%.2f culled=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.SpeciesCount,
			d.FingerprintDiversity,
			d.SpeciationThreshold,
			d.MeanNeurons,
			d.MeanSynapses,
			d.CulledGenomes,
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 100, "max lineage records to show, newest last")
	jsonOut := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("lineage requires --run-id")
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	lineage, ok, err := store.GetLineage(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lineage not found for run id: %s", *runID)
	}
	lineage = lastN(lineage, *limit)
	if len(lineage) == 0 {
		fmt.Println("no lineage records")
		return nil
	}
	if *jsonOut {
		return printJSON(lineage)
	}
	for _, rec := range lineage {
		fmt.Printf("gen=%d genome_id=%s parent_id=%s mate_id=%s op=%s species=%s fingerprint=%s\n",
			rec.Generation,
			rec.GenomeID,
			rec.ParentID,
			rec.MateID,
			rec.Operation,
			rec.SpeciesKey,
			rec.Fingerprint,
		)
	}
	return nil
}

func runPolicy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "ppo run id")
	exportPath := fs.String("export", "", "write the versioned policy snapshot to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("policy requires --run-id")
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	rec, ok, err := store.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run not found: %s", *runID)
	}
	if rec.Kind != "ppo" {
		return fmt.Errorf("run %s is a %s run, not ppo", rec.ID, rec.Kind)
	}
	snapshot, ok, err := store.GetPolicy(ctx, rec.ArtifactID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("policy not found: %s", rec.ArtifactID)
	}

	if *exportPath != "" {
		data, err := storage.EncodePolicy(snapshot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write policy export: %w", err)
		}
		fmt.Printf("exported policy=%s path=%s\n", snapshot.ID, *exportPath)
		return nil
	}
	fmt.Printf("policy=%s action_kind=%s action_size=%d observation_size=%d actor_layers=%d critic_layers=%d updates=%d normalized=%t\n",
		snapshot.ID,
		snapshot.ActionKind,
		snapshot.ActionSize,
		snapshot.Actor.InputSize,
		len(snapshot.Actor.Layers),
		len(snapshot.Critic.Layers),
		snapshot.Updates,
		len(snapshot.ObservationMin) > 0,
	)
	return nil
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	return setFlags
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gamelearnctl <init|ppo|neat|runs|history|diagnostics|lineage|policy|scapes> [flags]", msg)
}
