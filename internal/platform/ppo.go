package platform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gamelearn/internal/agent"
	"gamelearn/internal/experience"
	"gamelearn/internal/model"
	"gamelearn/internal/normalize"
	"gamelearn/internal/ppo"
	"gamelearn/internal/scape"
)

type PPOConfig struct {
	RunID string
	Scape string
	// Agents collect rollouts concurrently, each in its own environment.
	Agents int
	// Iterations is the number of collect-then-update rounds of this call.
	Iterations       int
	EpisodesPerAgent int
	Seed             int64

	Hidden                []int
	Activation            string
	InitLogStd            float64
	NormalizeObservations bool
	// Resume continues from the policy persisted under RunID.
	Resume  bool
	Trainer ppo.Config
}

type PPOResult struct {
	RunID          string
	Updates        []model.UpdateRecord
	Policy         model.PolicySnapshot
	BestMeanReturn float64
	// EvalReturn is the deterministic policy's fitness on the scape's
	// evaluation protocol.
	EvalReturn float64
}

type rolloutAgent struct {
	env  scape.Environment
	ctrl *agent.Controller
	rng  *rand.Rand
}

// collect steps the agent until it has finished episodes episodes,
// performing the reset each episode boundary asks for.
func (a *rolloutAgent) collect(ctx context.Context, episodes int) error {
	for done := 0; done < episodes; {
		ev, err := a.ctrl.Step(ctx)
		if err != nil {
			return err
		}
		if ev.Kind == agent.EventEpisodeEnd {
			a.env.Reset(ev.Reset, a.rng)
			done++
		}
	}
	return nil
}

func (p *Polis) RunPPO(ctx context.Context, cfg PPOConfig) (PPOResult, error) {
	if cfg.Agents <= 0 || cfg.Iterations <= 0 || cfg.EpisodesPerAgent <= 0 {
		return PPOResult{}, fmt.Errorf("agents, iterations and episodes per agent must be > 0, got agents=%d iterations=%d episodes=%d",
			cfg.Agents, cfg.Iterations, cfg.EpisodesPerAgent)
	}
	if cfg.Resume && cfg.RunID == "" {
		return PPOResult{}, fmt.Errorf("resume requires a run id")
	}
	info, factory, err := scape.Lookup(cfg.Scape)
	if err != nil {
		return PPOResult{}, err
	}
	runID, err := p.beginRun(cfg.RunID, "ppo")
	if err != nil {
		return PPOResult{}, err
	}
	defer p.endRun(runID)
	logger := p.logger.With("run_id", runID, "scape", cfg.Scape)

	rng := rand.New(rand.NewSource(cfg.Seed))
	spec := factory().Spec()
	var normalizer *normalize.RunningNormalizer
	if cfg.NormalizeObservations {
		normalizer, err = normalize.NewRunningNormalizer(spec.ObservationSize)
		if err != nil {
			return PPOResult{}, err
		}
	}

	result := PPOResult{RunID: runID, BestMeanReturn: math.Inf(-1)}
	var (
		policy     *ppo.Policy
		prevUpdate int
	)
	if cfg.Resume {
		policy, prevUpdate, err = p.restorePPO(ctx, runID, normalizer, &result)
		if err != nil {
			return PPOResult{}, err
		}
	} else {
		policy, err = ppo.NewPolicy(ppo.PolicyConfig{
			ObservationSize: spec.ObservationSize,
			Action:          info.Action,
			Hidden:          cfg.Hidden,
			Activation:      cfg.Activation,
			InitLogStd:      cfg.InitLogStd,
		}, rng)
		if err != nil {
			return PPOResult{}, err
		}
	}
	if policy.ObservationSize() != spec.ObservationSize || policy.ActionSize() != spec.ActionSize {
		return PPOResult{}, fmt.Errorf("%w: scape observation=%d action=%d policy observation=%d action=%d",
			agent.ErrDimensionMismatch, spec.ObservationSize, spec.ActionSize, policy.ObservationSize(), policy.ActionSize())
	}

	trainer, err := ppo.NewTrainer(policy, cfg.Trainer, rand.New(rand.NewSource(rng.Int63())), logger)
	if err != nil {
		return PPOResult{}, err
	}
	handle := ppo.NewPolicyHandle(trainer.Policy())

	agents := make([]*rolloutAgent, 0, cfg.Agents)
	for i := 0; i < cfg.Agents; i++ {
		env := factory()
		agentRng := rand.New(rand.NewSource(rng.Int63()))
		decider, err := agent.NewPolicyDecider(handle, rand.New(rand.NewSource(rng.Int63())))
		if err != nil {
			return PPOResult{}, err
		}
		ctrl, err := agent.NewController(fmt.Sprintf("%s-agent-%d", runID, i), env, decider, agent.ControllerConfig{
			Mode:       agent.Learning,
			MaxSteps:   info.MaxSteps,
			DoneReset:  agent.ResetAgentAndEnvironment,
			Normalizer: normalizer,
		})
		if err != nil {
			return PPOResult{}, err
		}
		env.Reset(agent.ResetAgentAndEnvironment, agentRng)
		agents = append(agents, &rolloutAgent{env: env, ctrl: ctrl, rng: agentRng})
	}

	logger.Info("ppo run started", "agents", cfg.Agents, "iterations", cfg.Iterations, "update", prevUpdate)
	for iter := 0; iter < cfg.Iterations; iter++ {
		episodes, err := collectRollouts(ctx, agents, cfg.EpisodesPerAgent)
		if err != nil {
			return PPOResult{}, fmt.Errorf("iteration %d: %w", iter, err)
		}
		stats, err := trainer.Update(ctx, episodes)
		if err != nil {
			return PPOResult{}, fmt.Errorf("iteration %d: %w", iter, err)
		}
		version := trainer.PublishTo(handle)

		record := stats.Record(prevUpdate + trainer.Updates())
		result.Updates = append(result.Updates, record)
		if stats.MeanReturn > result.BestMeanReturn {
			result.BestMeanReturn = stats.MeanReturn
		}
		if err := p.output.WriteUpdate(record); err != nil {
			return PPOResult{}, err
		}
		logger.Info("policy published",
			"update", record.Update,
			"version", version,
			"mean_return", stats.MeanReturn,
			"policy_loss", stats.PolicyLoss,
			"approx_kl", stats.ApproxKL,
		)
	}

	evalDecider, err := agent.NewPolicyDecider(handle, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return PPOResult{}, err
	}
	fitness, _, err := scape.EvaluateNormalized(ctx, cfg.Scape, evalDecider, normalizer)
	if err != nil {
		return PPOResult{}, fmt.Errorf("evaluate policy: %w", err)
	}
	result.EvalReturn = float64(fitness)

	snapshot := trainer.Policy().Snapshot(policyKey(runID), prevUpdate+trainer.Updates())
	if normalizer != nil {
		if bounds := normalizer.Snapshot(); bounds.Initialized() {
			snapshot.ObservationMin = bounds.Min()
			snapshot.ObservationMax = bounds.Max()
		}
	}
	result.Policy = snapshot

	if err := p.persistPPO(ctx, cfg, result); err != nil {
		return PPOResult{}, err
	}
	logger.Info("ppo run finished", "updates", snapshot.Updates, "eval_return", result.EvalReturn)
	return result, nil
}

// collectRollouts runs every agent concurrently against the published policy
// and gathers their completed episodes in agent order.
func collectRollouts(ctx context.Context, agents []*rolloutAgent, episodes int) ([]*experience.Episode, error) {
	errs := make([]error, len(agents))
	var wg sync.WaitGroup
	wg.Add(len(agents))
	for i, a := range agents {
		go func(i int, a *rolloutAgent) {
			defer wg.Done()
			errs[i] = a.collect(ctx, episodes)
		}(i, a)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var out []*experience.Episode
	for _, a := range agents {
		out = append(out, a.ctrl.Drain()...)
	}
	return out, nil
}

func (p *Polis) restorePPO(ctx context.Context, runID string, normalizer *normalize.RunningNormalizer, result *PPOResult) (*ppo.Policy, int, error) {
	snapshot, ok, err := p.store.GetPolicy(ctx, policyKey(runID))
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("policy not found: %s", runID)
	}
	policy, err := ppo.PolicyFromSnapshot(snapshot)
	if err != nil {
		return nil, 0, err
	}
	if normalizer != nil && len(snapshot.ObservationMin) > 0 {
		bounds, err := normalize.BoundsFrom(snapshot.ObservationMin, snapshot.ObservationMax)
		if err != nil {
			return nil, 0, err
		}
		if err := normalizer.Restore(bounds); err != nil {
			return nil, 0, err
		}
	}
	if updates, ok, err := p.store.GetUpdateHistory(ctx, runID); err != nil {
		return nil, 0, err
	} else if ok {
		result.Updates = updates
		for _, u := range updates {
			if u.MeanReturn > result.BestMeanReturn {
				result.BestMeanReturn = u.MeanReturn
			}
		}
	}
	return policy, snapshot.Updates, nil
}

func (p *Polis) persistPPO(ctx context.Context, cfg PPOConfig, result PPOResult) error {
	if err := p.store.SavePolicy(ctx, result.Policy); err != nil {
		return err
	}
	if err := p.store.SaveUpdateHistory(ctx, result.RunID, result.Updates); err != nil {
		return err
	}
	return p.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: model.CurrentVersion(),
		ID:              result.RunID,
		Kind:            "ppo",
		Scape:           cfg.Scape,
		Seed:            cfg.Seed,
		Steps:           result.Policy.Updates,
		BestScore:       result.EvalReturn,
		ArtifactID:      result.Policy.ID,
	})
}

func policyKey(runID string) string {
	return runID + "/policy"
}
