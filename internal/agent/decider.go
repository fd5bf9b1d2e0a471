package agent

import (
	"errors"
	"fmt"
	"math/rand"

	"gamelearn/internal/nn"
	"gamelearn/internal/ppo"
)

type Decision struct {
	Action   []float64
	LogProbs []float64
	Value    float64
}

// Decider maps observations to actions. explore selects a stochastic action
// where the decider supports it.
type Decider interface {
	Decide(obs []float64, explore bool) (Decision, error)
	Evaluate(obs, action []float64) (Decision, error)
	ObservationSize() int
	ActionSize() int
}

// PolicyDecider reads the policy currently published on a handle. Each
// agent owns its own decider, so the random source is never shared.
type PolicyDecider struct {
	handle          *ppo.PolicyHandle
	rng             *rand.Rand
	observationSize int
	actionSize      int
}

func NewPolicyDecider(handle *ppo.PolicyHandle, rng *rand.Rand) (*PolicyDecider, error) {
	if handle == nil {
		return nil, errors.New("policy handle is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	d := &PolicyDecider{handle: handle, rng: rng}
	err := handle.View(func(p *ppo.Policy) error {
		d.observationSize = p.ObservationSize()
		d.actionSize = p.ActionSize()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *PolicyDecider) Decide(obs []float64, explore bool) (Decision, error) {
	var out ppo.Decision
	err := d.handle.View(func(p *ppo.Policy) error {
		var err error
		if explore {
			out, err = p.Act(obs, d.rng)
		} else {
			out, err = p.Deterministic(obs)
		}
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return Decision(out), nil
}

func (d *PolicyDecider) Evaluate(obs, action []float64) (Decision, error) {
	var out ppo.Decision
	err := d.handle.View(func(p *ppo.Policy) error {
		var err error
		out, err = p.Evaluate(obs, action)
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return Decision(out), nil
}

func (d *PolicyDecider) ObservationSize() int { return d.observationSize }
func (d *PolicyDecider) ActionSize() int      { return d.actionSize }

// GenomeDecider drives an agent with a compiled NEAT genome. Its actions are
// the raw network outputs; log-probabilities and value are zero.
type GenomeDecider struct {
	network *nn.GenomeNetwork
}

func NewGenomeDecider(network *nn.GenomeNetwork) (*GenomeDecider, error) {
	if network == nil {
		return nil, errors.New("genome network is required")
	}
	return &GenomeDecider{network: network}, nil
}

func (d *GenomeDecider) Decide(obs []float64, _ bool) (Decision, error) {
	out, err := d.network.Activate(obs)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Action: out, LogProbs: make([]float64, len(out))}, nil
}

func (d *GenomeDecider) Evaluate(obs, action []float64) (Decision, error) {
	if len(action) != d.network.OutputSize() {
		return Decision{}, fmt.Errorf("%w: action size=%d got=%d", ErrDimensionMismatch, d.network.OutputSize(), len(action))
	}
	if len(obs) != d.network.InputSize() {
		return Decision{}, fmt.Errorf("%w: observation size=%d got=%d", ErrDimensionMismatch, d.network.InputSize(), len(obs))
	}
	return Decision{Action: append([]float64(nil), action...), LogProbs: make([]float64, len(action))}, nil
}

func (d *GenomeDecider) ObservationSize() int { return d.network.InputSize() }
func (d *GenomeDecider) ActionSize() int      { return d.network.OutputSize() }
