package evo

import (
	"context"
	"errors"
	"math/rand"

	"gamelearn/internal/genotype"
	"gamelearn/internal/model"
)

var (
	ErrNoSynapses       = errors.New("genome has no synapses")
	ErrNoMutationChoice = errors.New("no mutation choice available")
)

// PerturbWeights nudges every synapse weight by gaussian noise of std Power.
// With probability ReplaceRate a weight is redrawn instead.
type PerturbWeights struct {
	Rand        *rand.Rand
	Power       float64
	ReplaceRate float64
}

func (o *PerturbWeights) Name() string {
	return "perturb_weights"
}

func (o *PerturbWeights) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if o.Power <= 0 {
		return model.Genome{}, errors.New("perturb power must be > 0")
	}
	mutated := genotype.CloneGenome(genome)
	for i := range mutated.Synapses {
		if o.Rand.Float64() < o.ReplaceRate {
			mutated.Synapses[i].Weight = o.Rand.NormFloat64()
			continue
		}
		mutated.Synapses[i].Weight += o.Rand.NormFloat64() * o.Power
	}
	return mutated, nil
}

// PerturbBiases nudges the bias of every hidden and output neuron.
type PerturbBiases struct {
	Rand  *rand.Rand
	Power float64
}

func (o *PerturbBiases) Name() string {
	return "perturb_biases"
}

func (o *PerturbBiases) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.Power <= 0 {
		return model.Genome{}, errors.New("perturb power must be > 0")
	}
	mutated := genotype.CloneGenome(genome)
	changed := false
	for i := range mutated.Neurons {
		if !computes(mutated.Neurons[i].Role) {
			continue
		}
		mutated.Neurons[i].Bias += o.Rand.NormFloat64() * o.Power
		changed = true
	}
	if !changed {
		return model.Genome{}, ErrNoMutationChoice
	}
	return mutated, nil
}

// AddSynapse connects two unconnected neurons. The new synapse never targets
// an input or bias neuron and never closes a cycle, disabled synapses
// included, so the wiring stays feed-forward whatever is toggled later.
type AddSynapse struct {
	Rand        *rand.Rand
	Tracker     *InnovationTracker
	WeightScale float64
}

func (o *AddSynapse) Name() string {
	return "add_synapse"
}

func (o *AddSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.Tracker == nil {
		return model.Genome{}, errors.New("innovation tracker is required")
	}

	existing := make(map[linkKey]struct{}, len(genome.Synapses))
	for _, s := range genome.Synapses {
		existing[linkKey{from: s.From, to: s.To}] = struct{}{}
	}
	candidates := make([]linkKey, 0)
	for _, from := range genome.Neurons {
		if from.Role == model.RoleOutput {
			continue
		}
		for _, to := range genome.Neurons {
			if !computes(to.Role) || from.ID == to.ID {
				continue
			}
			key := linkKey{from: from.ID, to: to.ID}
			if _, ok := existing[key]; ok {
				continue
			}
			if reaches(genome, to.ID, from.ID) {
				continue
			}
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	scale := o.WeightScale
	if scale <= 0 {
		scale = 1
	}
	picked := candidates[o.Rand.Intn(len(candidates))]
	mutated := genotype.CloneGenome(genome)
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		Innovation: o.Tracker.Link(picked.from, picked.to),
		From:       picked.from,
		To:         picked.to,
		Weight:     o.Rand.NormFloat64() * scale,
		Enabled:    true,
	})
	return mutated, nil
}

// AddNeuron splits an enabled synapse a->b into a->n->b. The old synapse is
// disabled; a->n gets weight 1 and n->b inherits the old weight.
type AddNeuron struct {
	Rand       *rand.Rand
	Tracker    *InnovationTracker
	Activation string
}

func (o *AddNeuron) Name() string {
	return "add_neuron"
}

func (o *AddNeuron) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.Tracker == nil {
		return model.Genome{}, errors.New("innovation tracker is required")
	}
	candidates := make([]int, 0, len(genome.Synapses))
	for i, s := range genome.Synapses {
		if s.Enabled {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoSynapses
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	split := genome.Synapses[idx]
	neuronID := o.Tracker.SplitNeuron(split.Innovation)
	if hasNeuron(genome, neuronID) {
		// the same synapse was split before in this genome's line
		neuronID = o.Tracker.NewNeuronID()
	}
	activation := o.Activation
	if activation == "" {
		activation = "tanh"
	}

	mutated := genotype.CloneGenome(genome)
	mutated.Synapses[idx].Enabled = false
	mutated.Neurons = append(mutated.Neurons, model.Neuron{
		ID:         neuronID,
		Role:       model.RoleHidden,
		Activation: activation,
	})
	mutated.Synapses = append(mutated.Synapses,
		model.Synapse{
			Innovation: o.Tracker.Link(split.From, neuronID),
			From:       split.From,
			To:         neuronID,
			Weight:     1,
			Enabled:    true,
		},
		model.Synapse{
			Innovation: o.Tracker.Link(neuronID, split.To),
			From:       neuronID,
			To:         split.To,
			Weight:     split.Weight,
			Enabled:    true,
		},
	)
	return mutated, nil
}

// ToggleSynapse flips the enabled flag of one random synapse.
type ToggleSynapse struct {
	Rand *rand.Rand
}

func (o *ToggleSynapse) Name() string {
	return "toggle_synapse"
}

func (o *ToggleSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	mutated := genotype.CloneGenome(genome)
	idx := o.Rand.Intn(len(mutated.Synapses))
	mutated.Synapses[idx].Enabled = !mutated.Synapses[idx].Enabled
	return mutated, nil
}

type WeightedMutation struct {
	Operator Operator
	// Probability is the chance the operator fires for one child.
	Probability float64
}

type MutationRates struct {
	PerturbWeights float64
	PerturbBiases  float64
	AddSynapse     float64
	AddNeuron      float64
	ToggleSynapse  float64
	WeightPower    float64
	ReplaceRate    float64
}

func DefaultMutationRates() MutationRates {
	return MutationRates{
		PerturbWeights: 0.8,
		PerturbBiases:  0.3,
		AddSynapse:     0.1,
		AddNeuron:      0.05,
		ToggleSynapse:  0.02,
		WeightPower:    0.5,
		ReplaceRate:    0.1,
	}
}

// Mutator rolls each of its mutations independently for every child.
type Mutator struct {
	Rand      *rand.Rand
	Mutations []WeightedMutation
}

func NewMutator(rng *rand.Rand, tracker *InnovationTracker, rates MutationRates, hiddenActivation string) *Mutator {
	return &Mutator{
		Rand: rng,
		Mutations: []WeightedMutation{
			{Operator: &PerturbWeights{Rand: rng, Power: rates.WeightPower, ReplaceRate: rates.ReplaceRate}, Probability: rates.PerturbWeights},
			{Operator: &PerturbBiases{Rand: rng, Power: rates.WeightPower}, Probability: rates.PerturbBiases},
			{Operator: &AddSynapse{Rand: rng, Tracker: tracker}, Probability: rates.AddSynapse},
			{Operator: &AddNeuron{Rand: rng, Tracker: tracker, Activation: hiddenActivation}, Probability: rates.AddNeuron},
			{Operator: &ToggleSynapse{Rand: rng}, Probability: rates.ToggleSynapse},
		},
	}
}

func (m *Mutator) Name() string {
	return "mutator"
}

func (m *Mutator) Apply(ctx context.Context, genome model.Genome) (model.Genome, error) {
	out, _, err := m.Mutate(ctx, genome)
	return out, err
}

// Mutate applies the mutations that fire and reports their names in order.
// An operator that finds nothing to change is skipped.
func (m *Mutator) Mutate(ctx context.Context, genome model.Genome) (model.Genome, []string, error) {
	if m.Rand == nil {
		return model.Genome{}, nil, errors.New("random source is required")
	}
	mutated := genome
	applied := make([]string, 0, len(m.Mutations))
	for _, item := range m.Mutations {
		if err := ctx.Err(); err != nil {
			return model.Genome{}, nil, err
		}
		if item.Probability <= 0 || m.Rand.Float64() >= item.Probability {
			continue
		}
		next, err := item.Operator.Apply(ctx, mutated)
		if errors.Is(err, ErrNoSynapses) || errors.Is(err, ErrNoMutationChoice) {
			continue
		}
		if err != nil {
			return model.Genome{}, nil, err
		}
		mutated = next
		applied = append(applied, item.Operator.Name())
	}
	return mutated, applied, nil
}

func computes(role model.NeuronRole) bool {
	return role == model.RoleHidden || role == model.RoleOutput
}

func hasNeuron(g model.Genome, id int) bool {
	for _, n := range g.Neurons {
		if n.ID == id {
			return true
		}
	}
	return false
}

// reaches reports whether target is reachable from start over all synapses.
func reaches(g model.Genome, start, target int) bool {
	if start == target {
		return true
	}
	next := make(map[int][]int, len(g.Neurons))
	for _, s := range g.Synapses {
		next[s.From] = append(next[s.From], s.To)
	}
	seen := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range next[cur] {
			if to == target {
				return true
			}
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	return false
}
