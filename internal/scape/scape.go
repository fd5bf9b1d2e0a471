package scape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"gamelearn/internal/agent"
	"gamelearn/internal/normalize"
	"gamelearn/internal/ppo"
)

type Fitness float64

type Trace map[string]any

var (
	ErrScapeExists   = errors.New("scape already registered")
	ErrScapeNotFound = errors.New("scape not found")
)

// Environment is a reference world an agent can act in. Reset with a nil rng
// replays a fixed start sequence so evaluations are repeatable.
type Environment interface {
	agent.Behavior
	Name() string
	Reset(scope agent.ResetScope, rng *rand.Rand)
}

type Factory func() Environment

// Info tells trainers how to build a network for an environment.
type Info struct {
	Name             string
	Action           ppo.ActionSpec
	OutputActivation string
	MaxSteps         int
	EvalEpisodes     int
}

type registeredScape struct {
	info    Info
	factory Factory
}

var scapeRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredScape
}{
	m: make(map[string]registeredScape),
}

func init() {
	initializeBuiltInScapes()
}

func initializeBuiltInScapes() {
	MustRegister(Info{
		Name:             CartPoleLiteName,
		Action:           ppo.ContinuousActions(1),
		OutputActivation: "tanh",
		MaxSteps:         cartPoleLiteSteps,
		EvalEpisodes:     len(cartPoleLiteStarts),
	}, func() Environment { return NewCartPoleLite() })
	MustRegister(Info{
		Name:             XORName,
		Action:           ppo.ContinuousActions(1),
		OutputActivation: "sigmoid",
		EvalEpisodes:     1,
	}, func() Environment { return NewXOR() })
	MustRegister(Info{
		Name:             TargetReachName,
		Action:           ppo.DiscreteActions(2),
		OutputActivation: "sigmoid",
		MaxSteps:         targetReachSteps,
		EvalEpisodes:     len(targetReachTargets),
	}, func() Environment { return NewTargetReach() })
}

func Register(info Info, factory Factory) error {
	if info.Name == "" {
		return errors.New("scape name is required")
	}
	if factory == nil {
		return errors.New("scape factory is required")
	}
	if err := info.Action.Validate(); err != nil {
		return fmt.Errorf("scape %s: %w", info.Name, err)
	}
	if info.EvalEpisodes <= 0 {
		return fmt.Errorf("scape %s: eval episodes must be > 0", info.Name)
	}
	scapeRegistry.mu.Lock()
	defer scapeRegistry.mu.Unlock()
	if _, exists := scapeRegistry.m[info.Name]; exists {
		return fmt.Errorf("%w: %s", ErrScapeExists, info.Name)
	}
	scapeRegistry.m[info.Name] = registeredScape{info: info, factory: factory}
	return nil
}

func MustRegister(info Info, factory Factory) {
	if err := Register(info, factory); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Info, Factory, error) {
	scapeRegistry.mu.RLock()
	entry, ok := scapeRegistry.m[name]
	scapeRegistry.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrScapeNotFound, name)
	}
	return entry.info, entry.factory, nil
}

func Names() []string {
	scapeRegistry.mu.RLock()
	defer scapeRegistry.mu.RUnlock()
	names := make([]string, 0, len(scapeRegistry.m))
	for name := range scapeRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetScapeRegistryForTests() {
	scapeRegistry.mu.Lock()
	scapeRegistry.m = make(map[string]registeredScape)
	scapeRegistry.mu.Unlock()
	initializeBuiltInScapes()
}

// Evaluate runs the fixed evaluation protocol of the named scape with
// decider in inference mode. Fitness is the mean episode return.
func Evaluate(ctx context.Context, name string, decider agent.Decider) (Fitness, Trace, error) {
	return EvaluateNormalized(ctx, name, decider, nil)
}

// EvaluateNormalized is Evaluate for deciders trained on normalized
// observations. The normalizer is only read.
func EvaluateNormalized(ctx context.Context, name string, decider agent.Decider, normalizer *normalize.RunningNormalizer) (Fitness, Trace, error) {
	info, factory, err := Lookup(name)
	if err != nil {
		return 0, nil, err
	}
	env := factory()
	ctrl, err := agent.NewController(name, env, decider, agent.ControllerConfig{
		Mode:       agent.InferenceOnly,
		MaxSteps:   info.MaxSteps,
		DoneReset:  agent.ResetAgentAndEnvironment,
		Normalizer: normalizer,
	})
	if err != nil {
		return 0, nil, err
	}

	total := 0.0
	steps := 0
	for episode := 0; episode < info.EvalEpisodes; episode++ {
		env.Reset(agent.ResetAgentAndEnvironment, nil)
		for {
			ev, err := ctrl.Step(ctx)
			if err != nil {
				return 0, nil, err
			}
			if ev.Kind == agent.EventEpisodeEnd {
				total += ev.Return
				steps += ev.Steps
				break
			}
		}
	}
	mean := total / float64(info.EvalEpisodes)
	return Fitness(mean), Trace{
		"mean_return": mean,
		"episodes":    info.EvalEpisodes,
		"steps":       steps,
	}, nil
}
