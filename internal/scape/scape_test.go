package scape

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"gamelearn/internal/agent"
	"gamelearn/internal/model"
	"gamelearn/internal/nn"
	"gamelearn/internal/ppo"
)

type funcDecider struct {
	obs, act int
	fn       func(obs []float64) []float64
}

func (d funcDecider) Decide(obs []float64, _ bool) (agent.Decision, error) {
	out := d.fn(obs)
	return agent.Decision{Action: out, LogProbs: make([]float64, len(out))}, nil
}

func (d funcDecider) Evaluate(obs, action []float64) (agent.Decision, error) {
	return agent.Decision{Action: action, LogProbs: make([]float64, len(action))}, nil
}

func (d funcDecider) ObservationSize() int { return d.obs }
func (d funcDecider) ActionSize() int      { return d.act }

func genomeDecider(t *testing.T, genome model.Genome) agent.Decider {
	t.Helper()
	network, err := nn.Compile(genome)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	decider, err := agent.NewGenomeDecider(network)
	if err != nil {
		t.Fatalf("new decider: %v", err)
	}
	return decider
}

func TestBuiltInScapesRegistered(t *testing.T) {
	names := Names()
	want := []string{CartPoleLiteName, TargetReachName, XORName}
	if len(names) != len(want) {
		t.Fatalf("unexpected names: got=%v want=%v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected names: got=%v want=%v", names, want)
		}
	}
	for _, name := range names {
		info, factory, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		env := factory()
		if env.Name() != name {
			t.Fatalf("factory name mismatch: got=%s want=%s", env.Name(), name)
		}
		if env.Spec().ActionSize != info.Action.Size {
			t.Fatalf("%s: action size mismatch: env=%d info=%d", name, env.Spec().ActionSize, info.Action.Size)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Cleanup(resetScapeRegistryForTests)
	factory := func() Environment { return NewXOR() }

	if err := Register(Info{Name: XORName, Action: ppo.ContinuousActions(1), EvalEpisodes: 1}, factory); !errors.Is(err, ErrScapeExists) {
		t.Fatalf("expected ErrScapeExists, got %v", err)
	}
	if err := Register(Info{Name: "no-episodes", Action: ppo.ContinuousActions(1)}, factory); err == nil {
		t.Fatal("expected eval episode validation error")
	}
	if err := Register(Info{Name: "no-factory", Action: ppo.ContinuousActions(1), EvalEpisodes: 1}, nil); err == nil {
		t.Fatal("expected factory validation error")
	}
	if err := Register(Info{Name: "xor-copy", Action: ppo.ContinuousActions(1), EvalEpisodes: 1}, factory); err != nil {
		t.Fatalf("register copy: %v", err)
	}
	if _, _, err := Lookup("xor-copy"); err != nil {
		t.Fatalf("lookup copy: %v", err)
	}
	if _, _, err := Lookup("missing"); !errors.Is(err, ErrScapeNotFound) {
		t.Fatalf("expected ErrScapeNotFound, got %v", err)
	}
}

func TestCartPoleLiteEvaluateWithHandBuiltGenome(t *testing.T) {
	genome := model.Genome{
		Neurons: []model.Neuron{
			{ID: 0, Role: model.RoleInput},
			{ID: 1, Role: model.RoleInput},
			{ID: 2, Role: model.RoleOutput, Activation: "identity"},
		},
		Synapses: []model.Synapse{
			{Innovation: 1, From: 0, To: 2, Weight: -1.2, Enabled: true},
			{Innovation: 2, From: 1, To: 2, Weight: -0.6, Enabled: true},
		},
	}
	fitness, trace, err := Evaluate(context.Background(), CartPoleLiteName, genomeDecider(t, genome))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if trace["episodes"] != len(cartPoleLiteStarts) {
		t.Fatalf("unexpected episodes: got=%v want=%d", trace["episodes"], len(cartPoleLiteStarts))
	}
	if trace["steps"] != len(cartPoleLiteStarts)*cartPoleLiteSteps {
		t.Fatalf("controller should survive every step: got=%v", trace["steps"])
	}
	if fitness <= 0.5*cartPoleLiteSteps {
		t.Fatalf("expected fitness > %d, got %f", cartPoleLiteSteps/2, fitness)
	}

	idle := funcDecider{obs: 2, act: 1, fn: func([]float64) []float64 { return []float64{1} }}
	pushed, _, err := Evaluate(context.Background(), CartPoleLiteName, idle)
	if err != nil {
		t.Fatalf("evaluate pushed: %v", err)
	}
	if pushed >= fitness {
		t.Fatalf("constant push should score worse: pushed=%f controller=%f", pushed, fitness)
	}
}

func TestCartPoleLiteReset(t *testing.T) {
	cp := NewCartPoleLite()
	for _, want := range cartPoleLiteStarts {
		cp.Reset(agent.ResetAgent, nil)
		if obs := cp.CollectObservations(); obs[0] != want || obs[1] != 0 {
			t.Fatalf("unexpected start: got=%v want=[%f 0]", obs, want)
		}
	}
	cp.OnActionReceived([]float64{1})
	before := cp.CollectObservations()
	cp.Reset(agent.ResetNone, nil)
	if after := cp.CollectObservations(); after[0] != before[0] || after[1] != before[1] {
		t.Fatalf("ResetNone changed state: before=%v after=%v", before, after)
	}

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		cp.Reset(agent.ResetAgentAndEnvironment, rng)
		if x := cp.CollectObservations()[0]; x < -0.8 || x > 0.8 {
			t.Fatalf("random start out of range: %f", x)
		}
	}
}

func TestCartPoleLiteStepClampsForce(t *testing.T) {
	x1, v1, _ := cartPoleLiteStep(0, 0, 10)
	x2, v2, _ := cartPoleLiteStep(0, 0, 1)
	if x1 != x2 || v1 != v2 {
		t.Fatalf("force should clamp to 1: got=(%f,%f) want=(%f,%f)", x1, v1, x2, v2)
	}
	_, _, reward := cartPoleLiteStep(0, 0, 0)
	if reward != 1 {
		t.Fatalf("resting at origin should earn full reward, got %f", reward)
	}
}

func TestXOREvaluateWithHandBuiltGenome(t *testing.T) {
	// OR and NAND hidden units feeding an AND output.
	genome := model.Genome{
		Neurons: []model.Neuron{
			{ID: 1, Role: model.RoleInput},
			{ID: 2, Role: model.RoleInput},
			{ID: 3, Role: model.RoleHidden, Activation: "sigmoid", Bias: -10},
			{ID: 4, Role: model.RoleHidden, Activation: "sigmoid", Bias: 30},
			{ID: 5, Role: model.RoleOutput, Activation: "sigmoid", Bias: -30},
		},
		Synapses: []model.Synapse{
			{Innovation: 1, From: 1, To: 3, Weight: 20, Enabled: true},
			{Innovation: 2, From: 2, To: 3, Weight: 20, Enabled: true},
			{Innovation: 3, From: 1, To: 4, Weight: -20, Enabled: true},
			{Innovation: 4, From: 2, To: 4, Weight: -20, Enabled: true},
			{Innovation: 5, From: 3, To: 5, Weight: 20, Enabled: true},
			{Innovation: 6, From: 4, To: 5, Weight: 20, Enabled: true},
		},
	}
	fitness, trace, err := Evaluate(context.Background(), XORName, genomeDecider(t, genome))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if trace["steps"] != len(xorCases) {
		t.Fatalf("unexpected steps: got=%v want=%d", trace["steps"], len(xorCases))
	}
	if fitness < 3.9 {
		t.Fatalf("expected near-perfect fitness, got %f", fitness)
	}

	half := funcDecider{obs: 2, act: 1, fn: func([]float64) []float64 { return []float64{0.5} }}
	fitness, _, err = Evaluate(context.Background(), XORName, half)
	if err != nil {
		t.Fatalf("evaluate half: %v", err)
	}
	if fitness != 2 {
		t.Fatalf("constant 0.5 answer: got=%f want=2", fitness)
	}
}

func TestXORShuffleKeepsEveryRow(t *testing.T) {
	x := NewXOR()
	x.Reset(agent.ResetAgentAndEnvironment, rand.New(rand.NewSource(9)))
	seen := map[int]bool{}
	for _, idx := range x.order {
		seen[idx] = true
	}
	if len(seen) != len(xorCases) {
		t.Fatalf("shuffle lost rows: %v", x.order)
	}
	for i := 0; i < len(xorCases); i++ {
		fb := x.OnActionReceived(x.Heuristic())
		if fb.Reward != 1 {
			t.Fatalf("heuristic answer should be exact, got reward %f", fb.Reward)
		}
		if fb.Done != (i == len(xorCases)-1) {
			t.Fatalf("unexpected done at row %d", i)
		}
	}
}

func TestTargetReachEvaluate(t *testing.T) {
	toward := funcDecider{obs: 2, act: 1, fn: func(obs []float64) []float64 {
		if obs[1] > 0 {
			return []float64{1}
		}
		return []float64{0}
	}}
	good, trace, err := Evaluate(context.Background(), TargetReachName, toward)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if good < 0.9 {
		t.Fatalf("greedy mover should reach every target, got %f trace=%v", good, trace)
	}

	left := funcDecider{obs: 2, act: 1, fn: func([]float64) []float64 { return []float64{0} }}
	bad, _, err := Evaluate(context.Background(), TargetReachName, left)
	if err != nil {
		t.Fatalf("evaluate left: %v", err)
	}
	if bad >= good {
		t.Fatalf("always-left should score worse: left=%f greedy=%f", bad, good)
	}
}

func TestTargetReachHeuristicAndRandomTargets(t *testing.T) {
	tr := NewTargetReach()
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 10; i++ {
		tr.Reset(agent.ResetAgentAndEnvironment, rng)
		obs := tr.CollectObservations()
		if obs[0] != 0 || obs[1] < -0.8 || obs[1] > 0.8 || (obs[1] > -0.2 && obs[1] < 0.2) {
			t.Fatalf("unexpected random start: %v", obs)
		}
		done := false
		for step := 0; step < targetReachSteps && !done; step++ {
			done = tr.OnActionReceived(tr.Heuristic()).Done
		}
		if !done {
			t.Fatalf("heuristic failed to reach target %f", obs[1])
		}
	}
}

func TestEvaluateRejectsMismatchedDecider(t *testing.T) {
	wide := funcDecider{obs: 3, act: 1, fn: func([]float64) []float64 { return []float64{0} }}
	if _, _, err := Evaluate(context.Background(), XORName, wide); !errors.Is(err, agent.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if _, _, err := Evaluate(context.Background(), "missing", wide); !errors.Is(err, ErrScapeNotFound) {
		t.Fatalf("expected ErrScapeNotFound, got %v", err)
	}
}

func TestEvaluateHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	half := funcDecider{obs: 2, act: 1, fn: func([]float64) []float64 { return []float64{0.5} }}
	if _, _, err := Evaluate(ctx, XORName, half); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
