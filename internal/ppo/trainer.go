package ppo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gamelearn/internal/experience"
	"gamelearn/internal/model"
	"gamelearn/internal/nn"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Config struct {
	Gamma         float64
	Lambda        float64
	ClipEpsilon   float64
	ValueClip     float64
	ValueCoef     float64
	EntropyCoef   float64
	LearningRate  float64
	Epochs        int
	MinibatchSize int
	MaxGradNorm   float64
	// TargetKL stops the remaining epochs once the mean approximate KL of an
	// epoch exceeds it. Zero disables the check.
	TargetKL            float64
	NormalizeAdvantages bool
}

func DefaultConfig() Config {
	return Config{
		Gamma:               0.99,
		Lambda:              0.95,
		ClipEpsilon:         0.2,
		ValueCoef:           0.5,
		EntropyCoef:         0.01,
		LearningRate:        3e-4,
		Epochs:              4,
		MinibatchSize:       64,
		MaxGradNorm:         0.5,
		TargetKL:            0.02,
		NormalizeAdvantages: true,
	}
}

func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1], got %f", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("lambda must be in [0, 1], got %f", c.Lambda)
	}
	if c.ClipEpsilon <= 0 || c.ClipEpsilon >= 1 {
		return fmt.Errorf("clip epsilon must be in (0, 1), got %f", c.ClipEpsilon)
	}
	if c.ValueClip < 0 || c.ValueCoef < 0 || c.EntropyCoef < 0 || c.MaxGradNorm < 0 || c.TargetKL < 0 {
		return errors.New("value clip, coefficients, max grad norm and target kl must be >= 0")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be > 0, got %f", c.LearningRate)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0, got %d", c.Epochs)
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch size must be > 0, got %d", c.MinibatchSize)
	}
	return nil
}

type UpdateStats struct {
	Samples           int
	Episodes          int
	MeanReturn        float64
	PolicyLoss        float64
	ValueLoss         float64
	Entropy           float64
	ApproxKL          float64
	ClipFraction      float64
	EpochsRun         int
	EarlyStopped      bool
	ExplainedVariance float64
}

func (s UpdateStats) Record(update int) model.UpdateRecord {
	return model.UpdateRecord{
		Update:       update,
		Samples:      s.Samples,
		Episodes:     s.Episodes,
		MeanReturn:   s.MeanReturn,
		PolicyLoss:   s.PolicyLoss,
		ValueLoss:    s.ValueLoss,
		Entropy:      s.Entropy,
		ApproxKL:     s.ApproxKL,
		ClipFraction: s.ClipFraction,
		EpochsRun:    s.EpochsRun,
		EarlyStopped: s.EarlyStopped,
		ExplainedVar: s.ExplainedVariance,
	}
}

type batchEntry struct {
	obs       []float64
	action    []float64
	oldLogP   float64
	oldValue  float64
	advantage float64
	target    float64
}

type epochTotals struct {
	policyLoss float64
	valueLoss  float64
	entropy    float64
	kl         float64
	clipped    int
	n          int
}

// Trainer owns a working copy of the policy and updates it from batches of
// episodes. Publish copies of it through a PolicyHandle for rollouts.
type Trainer struct {
	cfg       Config
	policy    *Policy
	actorOpt  *nn.Adam
	criticOpt *nn.Adam
	stdOpt    *nn.Adam
	rng       *rand.Rand
	logger    *slog.Logger
	updates   int
}

func NewTrainer(policy *Policy, cfg Config, rng *rand.Rand, logger *slog.Logger) (*Trainer, error) {
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Trainer{
		cfg:       cfg,
		policy:    policy.Clone(),
		actorOpt:  nn.NewAdam(cfg.LearningRate),
		criticOpt: nn.NewAdam(cfg.LearningRate),
		stdOpt:    nn.NewAdam(cfg.LearningRate),
		rng:       rng,
		logger:    logger,
	}, nil
}

// Policy returns a copy of the working policy.
func (t *Trainer) Policy() *Policy {
	return t.policy.Clone()
}

func (t *Trainer) Updates() int {
	return t.updates
}

// PublishTo swaps a copy of the working policy into h and returns the new
// handle version.
func (t *Trainer) PublishTo(h *PolicyHandle) int {
	return h.Publish(t.policy.Clone())
}

// Update runs GAE over episodes and then Epochs passes of clipped-surrogate
// minibatch descent. Empty input is a no-op.
func (t *Trainer) Update(ctx context.Context, episodes []*experience.Episode) (UpdateStats, error) {
	stats := UpdateStats{}
	returns := make([]float64, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Len() == 0 {
			continue
		}
		stats.Episodes++
		stats.Samples += ep.Len()
		returns = append(returns, ep.Return())
	}
	if stats.Samples == 0 {
		return UpdateStats{}, nil
	}
	if err := t.checkEpisodes(episodes); err != nil {
		return UpdateStats{}, err
	}
	stats.MeanReturn = stat.Mean(returns, nil)

	estimates := ComputeGAE(episodes, t.cfg.Gamma, t.cfg.Lambda)
	batch := make([]batchEntry, 0, stats.Samples)
	advantages := make([]float64, 0, stats.Samples)
	i := 0
	for _, ep := range episodes {
		for j := 0; j < ep.Len(); j++ {
			s := ep.Sample(j)
			batch = append(batch, batchEntry{
				obs:      s.State(),
				action:   s.Action(),
				oldLogP:  s.LogProb(),
				oldValue: s.Value(),
				target:   estimates[i].Return,
			})
			advantages = append(advantages, estimates[i].Advantage)
			i++
		}
	}
	if t.cfg.NormalizeAdvantages {
		NormalizeAdvantages(advantages)
	}
	for k := range batch {
		batch[k].advantage = advantages[k]
	}

	var last epochTotals
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		totals := epochTotals{}
		order := t.rng.Perm(len(batch))
		for start := 0; start < len(order); start += t.cfg.MinibatchSize {
			if err := ctx.Err(); err != nil {
				return UpdateStats{}, err
			}
			end := start + t.cfg.MinibatchSize
			if end > len(order) {
				end = len(order)
			}
			if err := t.step(batch, order[start:end], &totals); err != nil {
				return UpdateStats{}, err
			}
		}
		last = totals
		stats.EpochsRun++
		if t.cfg.TargetKL > 0 && totals.kl/float64(totals.n) > t.cfg.TargetKL {
			stats.EarlyStopped = true
			break
		}
	}

	n := float64(last.n)
	stats.PolicyLoss = last.policyLoss / n
	stats.ValueLoss = last.valueLoss / n
	stats.Entropy = last.entropy / n
	stats.ApproxKL = last.kl / n
	stats.ClipFraction = float64(last.clipped) / n
	stats.ExplainedVariance = t.explainedVariance(batch)

	t.updates++
	t.logger.Debug("ppo update",
		"update", t.updates,
		"samples", stats.Samples,
		"episodes", stats.Episodes,
		"mean_return", stats.MeanReturn,
		"policy_loss", stats.PolicyLoss,
		"value_loss", stats.ValueLoss,
		"approx_kl", stats.ApproxKL,
		"epochs", stats.EpochsRun,
		"early_stopped", stats.EarlyStopped,
	)
	return stats, nil
}

func (t *Trainer) checkEpisodes(episodes []*experience.Episode) error {
	p := t.policy
	for e, ep := range episodes {
		for j := 0; j < ep.Len(); j++ {
			s := ep.Sample(j)
			if s.StateLen() != p.observationSize {
				return fmt.Errorf("episode %d sample %d: %w: observation size=%d got=%d", e, j, ErrDimensionMismatch, p.observationSize, s.StateLen())
			}
			if err := p.action.checkAction(s.Action()); err != nil {
				return fmt.Errorf("episode %d sample %d: %w", e, j, err)
			}
			if len(s.LogProbs()) != p.action.Size {
				return fmt.Errorf("episode %d sample %d: %w: log probs=%d action size=%d", e, j, ErrDimensionMismatch, len(s.LogProbs()), p.action.Size)
			}
		}
	}
	return nil
}

// step accumulates gradients over one minibatch and applies them.
func (t *Trainer) step(batch []batchEntry, idx []int, totals *epochTotals) error {
	p := t.policy
	actorGrad := p.actor.ZeroGradients()
	criticGrad := p.critic.ZeroGradients()
	stdGrad := make([]float64, len(p.logStd))

	for _, k := range idx {
		e := batch[k]
		head, err := p.actor.Forward(e.obs)
		if err != nil {
			return err
		}
		logp, entropy, dLogp, dEntropy, dStdLogp, dStdEntropy := t.headTerms(head, e.action)

		ratio := math.Exp(logp - e.oldLogP)
		objective, dRatio := ClippedSurrogate(ratio, e.advantage, t.cfg.ClipEpsilon)
		// loss = -objective - entropyCoef*entropy
		coeff := -dRatio * ratio
		dHead := make([]float64, len(head))
		for j := range dHead {
			dHead[j] = coeff*dLogp[j] - t.cfg.EntropyCoef*dEntropy[j]
		}
		g, err := p.actor.Backward(dHead)
		if err != nil {
			return err
		}
		actorGrad.Add(g)
		for j := range stdGrad {
			stdGrad[j] += coeff*dStdLogp[j] - t.cfg.EntropyCoef*dStdEntropy[j]
		}

		value, err := p.critic.Forward(e.obs)
		if err != nil {
			return err
		}
		valueLoss, dValue := ClippedValueLoss(value[0], e.oldValue, e.target, t.cfg.ValueClip)
		cg, err := p.critic.Backward([]float64{t.cfg.ValueCoef * dValue})
		if err != nil {
			return err
		}
		criticGrad.Add(cg)

		totals.policyLoss += -objective
		totals.valueLoss += valueLoss
		totals.entropy += entropy
		totals.kl += (ratio - 1) - (logp - e.oldLogP)
		if math.Abs(ratio-1) > t.cfg.ClipEpsilon {
			totals.clipped++
		}
		totals.n++
	}

	scale := 1 / float64(len(idx))
	actorGrad.Scale(scale)
	criticGrad.Scale(scale)
	floats.Scale(scale, stdGrad)

	if t.cfg.MaxGradNorm > 0 {
		norm := math.Sqrt(actorGrad.SquaredNorm() + floats.Dot(stdGrad, stdGrad))
		if norm > t.cfg.MaxGradNorm {
			s := t.cfg.MaxGradNorm / (norm + 1e-12)
			actorGrad.Scale(s)
			floats.Scale(s, stdGrad)
		}
		nn.ClipGradients(t.cfg.MaxGradNorm, criticGrad)
	}

	if err := p.actor.ApplyGradients(actorGrad, t.actorOpt); err != nil {
		return err
	}
	if err := p.critic.ApplyGradients(criticGrad, t.criticOpt); err != nil {
		return err
	}
	if len(stdGrad) > 0 {
		t.stdOpt.Step(0, p.logStd, stdGrad)
		for j := range p.logStd {
			p.logStd[j] = clamp(p.logStd[j], minLogStd, maxLogStd)
		}
	}
	return nil
}

// headTerms returns the joint log-probability and entropy of action under
// the actor head, with their derivatives with respect to the head outputs
// and to the log-std parameters.
func (t *Trainer) headTerms(head, action []float64) (logp, entropy float64, dLogp, dEntropy, dStdLogp, dStdEntropy []float64) {
	p := t.policy
	dLogp = make([]float64, len(head))
	dEntropy = make([]float64, len(head))
	dStdLogp = make([]float64, len(p.logStd))
	dStdEntropy = make([]float64, len(p.logStd))

	if p.action.Kind == ActionContinuous {
		for i, mean := range head {
			s := p.logStd[i]
			std := math.Exp(s)
			z := (action[i] - mean) / std
			logp += gaussianLogProb(action[i], mean, s)
			entropy += gaussianEntropy(s)
			dLogp[i] = z / std
			dStdLogp[i] = z*z - 1
			dStdEntropy[i] = 1
		}
		return
	}

	offset := 0
	for b, n := range p.action.Branches {
		logProbs := nn.LogSoftmax(head[offset : offset+n])
		h := categoricalEntropy(logProbs)
		choice := int(action[b])
		logp += logProbs[choice]
		entropy += h
		for j, lp := range logProbs {
			prob := math.Exp(lp)
			indicator := 0.0
			if j == choice {
				indicator = 1
			}
			dLogp[offset+j] = indicator - prob
			dEntropy[offset+j] = -prob * (lp + h)
		}
		offset += n
	}
	return
}

func (t *Trainer) explainedVariance(batch []batchEntry) float64 {
	if len(batch) < 2 {
		return 0
	}
	targets := make([]float64, len(batch))
	residuals := make([]float64, len(batch))
	for i, e := range batch {
		targets[i] = e.target
		residuals[i] = e.target - e.oldValue
	}
	_, varTarget := stat.PopMeanVariance(targets, nil)
	if varTarget == 0 {
		return 0
	}
	_, varResidual := stat.PopMeanVariance(residuals, nil)
	return 1 - varResidual/varTarget
}
