package ppo

import (
	"math"

	"gamelearn/internal/experience"

	"gonum.org/v1/gonum/stat"
)

const advantageEpsilon = 1e-8

// Estimate is the generalized advantage and the matching return target of
// one sample.
type Estimate struct {
	Advantage float64
	Return    float64
}

// ComputeGAE walks every episode backward and returns one estimate per
// sample, flattened in episode order. A done sample cuts the bootstrap. A
// truncated or still open episode bootstraps from its recorded value, which
// defaults to the value of its last sample.
func ComputeGAE(episodes []*experience.Episode, gamma, lambda float64) []Estimate {
	total := 0
	for _, ep := range episodes {
		total += ep.Len()
	}
	out := make([]Estimate, total)
	offset := 0
	for _, ep := range episodes {
		n := ep.Len()
		if n == 0 {
			continue
		}
		next := bootstrapValue(ep)
		gae := 0.0
		for t := n - 1; t >= 0; t-- {
			s := ep.Sample(t)
			nonTerminal := 1.0
			if s.Done() {
				nonTerminal = 0
			}
			delta := s.Reward() + gamma*next*nonTerminal - s.Value()
			gae = delta + gamma*lambda*nonTerminal*gae
			out[offset+t] = Estimate{Advantage: gae, Return: gae + s.Value()}
			next = s.Value()
		}
		offset += n
	}
	return out
}

func bootstrapValue(ep *experience.Episode) float64 {
	if ep.Truncated() {
		return ep.Bootstrap()
	}
	if ep.Terminated() {
		return 0
	}
	return ep.Sample(ep.Len() - 1).Value()
}

// NormalizeAdvantages rescales values in place to zero mean and unit
// variance. A zero-variance batch only has its mean removed.
func NormalizeAdvantages(values []float64) {
	if len(values) == 0 {
		return
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	for i := range values {
		values[i] = (values[i] - mean) / (std + advantageEpsilon)
	}
}
