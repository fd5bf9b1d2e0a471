package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gamelearn/internal/model"
)

type linkKey struct {
	from int
	to   int
}

// InnovationTracker hands out innovation numbers and neuron IDs for one run.
// A (from, to) link always maps to the same innovation number. Splitting the
// same synapse twice in one generation yields the same neuron ID, so
// identical structural mutations line up during crossover.
type InnovationTracker struct {
	mu             sync.Mutex
	nextInnovation int64
	nextNeuronID   int
	links          map[linkKey]int64
	splits         map[int64]int
}

func NewInnovationTracker() *InnovationTracker {
	return &InnovationTracker{
		nextInnovation: 1,
		links:          make(map[linkKey]int64),
		splits:         make(map[int64]int),
	}
}

// Observe raises the counters past every gene of genome and learns its links.
// Used when a population is loaded from storage.
func (t *InnovationTracker) Observe(genome model.Genome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range genome.Neurons {
		if n.ID >= t.nextNeuronID {
			t.nextNeuronID = n.ID + 1
		}
	}
	for _, s := range genome.Synapses {
		key := linkKey{from: s.From, to: s.To}
		if _, ok := t.links[key]; !ok {
			t.links[key] = s.Innovation
		}
		if s.Innovation >= t.nextInnovation {
			t.nextInnovation = s.Innovation + 1
		}
	}
}

func (t *InnovationTracker) Link(from, to int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := linkKey{from: from, to: to}
	if innovation, ok := t.links[key]; ok {
		return innovation
	}
	innovation := t.nextInnovation
	t.nextInnovation++
	t.links[key] = innovation
	return innovation
}

// SplitNeuron returns the neuron ID for splitting synapse innovation in the
// current generation.
func (t *InnovationTracker) SplitNeuron(innovation int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.splits[innovation]; ok {
		return id
	}
	id := t.nextNeuronID
	t.nextNeuronID++
	t.splits[innovation] = id
	return id
}

func (t *InnovationTracker) NewNeuronID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextNeuronID
	t.nextNeuronID++
	return id
}

// NextGeneration forgets this generation's splits. Link innovations persist.
func (t *InnovationTracker) NextGeneration() {
	t.mu.Lock()
	t.splits = make(map[int64]int)
	t.mu.Unlock()
}

type GenomeConfig struct {
	OutputActivation string
	HiddenActivation string
	// WeightScale is the std of initial weights; zero means 1.
	WeightScale float64
}

func (c GenomeConfig) withDefaults() GenomeConfig {
	if c.OutputActivation == "" {
		c.OutputActivation = "sigmoid"
	}
	if c.HiddenActivation == "" {
		c.HiddenActivation = "tanh"
	}
	if c.WeightScale == 0 {
		c.WeightScale = 1
	}
	return c
}

// NewMinimalGenome builds a genome with no hidden neurons: every input and a
// bias neuron connect to every output. Neuron IDs are laid out as inputs,
// then bias, then outputs, so every minimal genome of a run shares them.
func NewMinimalGenome(id string, inputs, outputs int, cfg GenomeConfig, tracker *InnovationTracker, rng *rand.Rand) (model.Genome, error) {
	if inputs <= 0 || outputs <= 0 {
		return model.Genome{}, fmt.Errorf("inputs and outputs must be > 0, got inputs=%d outputs=%d", inputs, outputs)
	}
	if tracker == nil {
		return model.Genome{}, errors.New("innovation tracker is required")
	}
	if rng == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	cfg = cfg.withDefaults()

	genome := model.Genome{
		VersionedRecord: model.CurrentVersion(),
		ID:              id,
		Neurons:         make([]model.Neuron, 0, inputs+1+outputs),
	}
	for i := 0; i < inputs; i++ {
		genome.Neurons = append(genome.Neurons, model.Neuron{ID: i, Role: model.RoleInput})
	}
	genome.Neurons = append(genome.Neurons, model.Neuron{ID: inputs, Role: model.RoleBias})
	for o := 0; o < outputs; o++ {
		genome.Neurons = append(genome.Neurons, model.Neuron{
			ID:         inputs + 1 + o,
			Role:       model.RoleOutput,
			Activation: cfg.OutputActivation,
		})
	}
	for o := 0; o < outputs; o++ {
		to := inputs + 1 + o
		for from := 0; from <= inputs; from++ {
			genome.Synapses = append(genome.Synapses, model.Synapse{
				Innovation: tracker.Link(from, to),
				From:       from,
				To:         to,
				Weight:     rng.NormFloat64() * cfg.WeightScale,
				Enabled:    true,
			})
		}
	}
	tracker.Observe(genome)
	return genome, nil
}
