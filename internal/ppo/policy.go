package ppo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gamelearn/internal/model"
	"gamelearn/internal/nn"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1

	log2Pi    = 1.8378770664093453
	minLogStd = -5.0
	maxLogStd = 2.0
)

type PolicyConfig struct {
	ObservationSize int
	Action          ActionSpec
	Hidden          []int
	Activation      string
	InitLogStd      float64
}

// Decision is one chosen action with a log-probability per action dimension
// and the critic's value of the observation.
type Decision struct {
	Action   []float64
	LogProbs []float64
	Value    float64
}

// Policy is an actor/critic pair. The actor outputs Gaussian means for
// continuous actions or per-branch logits for discrete ones. Act, Evaluate
// and Deterministic only read the policy.
type Policy struct {
	observationSize int
	action          ActionSpec
	actor           *nn.Network
	critic          *nn.Network
	logStd          []float64
}

func NewPolicy(cfg PolicyConfig, rng *rand.Rand) (*Policy, error) {
	if cfg.ObservationSize <= 0 {
		return nil, fmt.Errorf("observation size must be > 0, got %d", cfg.ObservationSize)
	}
	if err := cfg.Action.Validate(); err != nil {
		return nil, err
	}
	activation := cfg.Activation
	if activation == "" {
		activation = "tanh"
	}
	hidden := make([]nn.LayerSpec, 0, len(cfg.Hidden))
	for _, size := range cfg.Hidden {
		hidden = append(hidden, nn.LayerSpec{Size: size, Activation: activation})
	}
	actor, err := nn.NewNetwork(nn.NetworkSpec{
		InputSize: cfg.ObservationSize,
		Layers:    append(append([]nn.LayerSpec(nil), hidden...), nn.LayerSpec{Size: cfg.Action.outputSize(), Activation: "linear", InitScale: 0.01}),
	}, rng)
	if err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	critic, err := nn.NewNetwork(nn.NetworkSpec{
		InputSize: cfg.ObservationSize,
		Layers:    append(append([]nn.LayerSpec(nil), hidden...), nn.LayerSpec{Size: 1, Activation: "linear"}),
	}, rng)
	if err != nil {
		return nil, fmt.Errorf("critic: %w", err)
	}
	p := &Policy{
		observationSize: cfg.ObservationSize,
		action:          cfg.Action,
		actor:           actor,
		critic:          critic,
	}
	if cfg.Action.Kind == ActionContinuous {
		p.logStd = make([]float64, cfg.Action.Size)
		for i := range p.logStd {
			p.logStd[i] = clamp(cfg.InitLogStd, minLogStd, maxLogStd)
		}
	}
	return p, nil
}

func (p *Policy) ObservationSize() int { return p.observationSize }

func (p *Policy) ActionSpec() ActionSpec {
	spec := p.action
	spec.Branches = append([]int(nil), p.action.Branches...)
	return spec
}

func (p *Policy) ActionSize() int { return p.action.Size }

func (p *Policy) LogStd() []float64 {
	return append([]float64(nil), p.logStd...)
}

func (p *Policy) Value(obs []float64) (float64, error) {
	out, err := p.critic.Predict(obs)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Act samples an action from the policy distribution.
func (p *Policy) Act(obs []float64, rng *rand.Rand) (Decision, error) {
	head, value, err := p.heads(obs)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Action:   make([]float64, p.action.Size),
		LogProbs: make([]float64, p.action.Size),
		Value:    value,
	}
	if p.action.Kind == ActionContinuous {
		for i, mean := range head {
			std := math.Exp(p.logStd[i])
			d.Action[i] = mean + std*rng.NormFloat64()
			d.LogProbs[i] = gaussianLogProb(d.Action[i], mean, p.logStd[i])
		}
		return d, nil
	}
	offset := 0
	for b, n := range p.action.Branches {
		logits := head[offset : offset+n]
		probs := nn.Softmax(logits)
		choice := sampleCategorical(probs, rng)
		d.Action[b] = float64(choice)
		d.LogProbs[b] = nn.LogSoftmax(logits)[choice]
		offset += n
	}
	return d, nil
}

// Deterministic returns the distribution mode: the Gaussian mean or the most
// likely choice per branch.
func (p *Policy) Deterministic(obs []float64) (Decision, error) {
	head, value, err := p.heads(obs)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Action:   make([]float64, p.action.Size),
		LogProbs: make([]float64, p.action.Size),
		Value:    value,
	}
	if p.action.Kind == ActionContinuous {
		for i, mean := range head {
			d.Action[i] = mean
			d.LogProbs[i] = gaussianLogProb(mean, mean, p.logStd[i])
		}
		return d, nil
	}
	offset := 0
	for b, n := range p.action.Branches {
		logits := head[offset : offset+n]
		best := 0
		for j := range logits {
			if logits[j] > logits[best] {
				best = j
			}
		}
		d.Action[b] = float64(best)
		d.LogProbs[b] = nn.LogSoftmax(logits)[best]
		offset += n
	}
	return d, nil
}

// Evaluate scores a given action under the current policy.
func (p *Policy) Evaluate(obs, action []float64) (Decision, error) {
	if err := p.action.checkAction(action); err != nil {
		return Decision{}, err
	}
	head, value, err := p.heads(obs)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Action:   append([]float64(nil), action...),
		LogProbs: make([]float64, p.action.Size),
		Value:    value,
	}
	if p.action.Kind == ActionContinuous {
		for i, mean := range head {
			d.LogProbs[i] = gaussianLogProb(action[i], mean, p.logStd[i])
		}
		return d, nil
	}
	offset := 0
	for b, n := range p.action.Branches {
		d.LogProbs[b] = nn.LogSoftmax(head[offset : offset+n])[int(action[b])]
		offset += n
	}
	return d, nil
}

// Entropy of the action distribution at obs, summed over dimensions.
func (p *Policy) Entropy(obs []float64) (float64, error) {
	head, err := p.actor.Predict(obs)
	if err != nil {
		return 0, err
	}
	if p.action.Kind == ActionContinuous {
		total := 0.0
		for _, s := range p.logStd {
			total += gaussianEntropy(s)
		}
		return total, nil
	}
	total := 0.0
	offset := 0
	for _, n := range p.action.Branches {
		total += categoricalEntropy(nn.LogSoftmax(head[offset : offset+n]))
		offset += n
	}
	return total, nil
}

func (p *Policy) Clone() *Policy {
	return &Policy{
		observationSize: p.observationSize,
		action:          p.ActionSpec(),
		actor:           p.actor.Clone(),
		critic:          p.critic.Clone(),
		logStd:          append([]float64(nil), p.logStd...),
	}
}

func (p *Policy) Snapshot(id string, updates int) model.PolicySnapshot {
	return model.PolicySnapshot{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: SupportedSchemaVersion,
			CodecVersion:  SupportedCodecVersion,
		},
		ID:             id,
		ActionKind:     string(p.action.Kind),
		ActionSize:     p.action.Size,
		ActionBranches: append([]int(nil), p.action.Branches...),
		Actor:          p.actor.Weights(),
		Critic:         p.critic.Weights(),
		LogStd:         append([]float64(nil), p.logStd...),
		Updates:        updates,
	}
}

func PolicyFromSnapshot(snapshot model.PolicySnapshot) (*Policy, error) {
	if snapshot.SchemaVersion != SupportedSchemaVersion || snapshot.CodecVersion != SupportedCodecVersion {
		return nil, fmt.Errorf("unsupported policy snapshot version: schema=%d codec=%d", snapshot.SchemaVersion, snapshot.CodecVersion)
	}
	spec := ActionSpec{Kind: ActionKind(snapshot.ActionKind), Size: snapshot.ActionSize, Branches: append([]int(nil), snapshot.ActionBranches...)}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	actor, err := nn.NetworkFromWeights(snapshot.Actor)
	if err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	critic, err := nn.NetworkFromWeights(snapshot.Critic)
	if err != nil {
		return nil, fmt.Errorf("critic: %w", err)
	}
	if actor.InputSize() != critic.InputSize() {
		return nil, fmt.Errorf("%w: actor input=%d critic input=%d", ErrDimensionMismatch, actor.InputSize(), critic.InputSize())
	}
	if actor.OutputSize() != spec.outputSize() || critic.OutputSize() != 1 {
		return nil, fmt.Errorf("%w: actor output=%d want=%d", ErrDimensionMismatch, actor.OutputSize(), spec.outputSize())
	}
	if spec.Kind == ActionContinuous && len(snapshot.LogStd) != spec.Size {
		return nil, fmt.Errorf("%w: log std=%d action size=%d", ErrDimensionMismatch, len(snapshot.LogStd), spec.Size)
	}
	if spec.Kind == ActionDiscrete && len(snapshot.LogStd) != 0 {
		return nil, errors.New("discrete policy snapshot must not carry log std")
	}
	return &Policy{
		observationSize: actor.InputSize(),
		action:          spec,
		actor:           actor,
		critic:          critic,
		logStd:          append([]float64(nil), snapshot.LogStd...),
	}, nil
}

func (p *Policy) heads(obs []float64) ([]float64, float64, error) {
	if len(obs) != p.observationSize {
		return nil, 0, fmt.Errorf("%w: observation size=%d got=%d", ErrDimensionMismatch, p.observationSize, len(obs))
	}
	head, err := p.actor.Predict(obs)
	if err != nil {
		return nil, 0, err
	}
	value, err := p.critic.Predict(obs)
	if err != nil {
		return nil, 0, err
	}
	return head, value[0], nil
}

func gaussianLogProb(x, mean, logStd float64) float64 {
	z := (x - mean) / math.Exp(logStd)
	return -0.5*z*z - logStd - 0.5*log2Pi
}

func gaussianEntropy(logStd float64) float64 {
	return 0.5 + 0.5*log2Pi + logStd
}

func categoricalEntropy(logProbs []float64) float64 {
	h := 0.0
	for _, lp := range logProbs {
		h -= math.Exp(lp) * lp
	}
	return h
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	u := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}
