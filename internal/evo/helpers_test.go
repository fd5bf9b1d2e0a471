package evo

import (
	"math/rand"
	"testing"

	"gamelearn/internal/model"
	"gamelearn/internal/nn"
)

func newLinearGenome(id string, weight float64) model.Genome {
	return model.Genome{
		VersionedRecord: model.CurrentVersion(),
		ID:              id,
		Neurons: []model.Neuron{
			{ID: 0, Role: model.RoleInput},
			{ID: 1, Role: model.RoleOutput, Activation: "identity"},
		},
		Synapses: []model.Synapse{
			{Innovation: 1, From: 0, To: 1, Weight: weight, Enabled: true},
		},
	}
}

func newComplexLinearGenome(id string, weight float64) model.Genome {
	g := newLinearGenome(id, weight)
	g.Neurons = append(g.Neurons,
		model.Neuron{ID: 2, Role: model.RoleHidden, Activation: "identity"},
		model.Neuron{ID: 3, Role: model.RoleHidden, Activation: "identity"},
	)
	g.Synapses = append(g.Synapses,
		model.Synapse{Innovation: 2, From: 0, To: 2, Weight: 0.1, Enabled: true},
		model.Synapse{Innovation: 3, From: 2, To: 3, Weight: 0.1, Enabled: true},
		model.Synapse{Innovation: 4, From: 3, To: 1, Weight: 0.1, Enabled: true},
	)
	return g
}

func newMinimal(t *testing.T, tracker *InnovationTracker, rng *rand.Rand, id string) model.Genome {
	t.Helper()
	genome, err := NewMinimalGenome(id, 2, 1, GenomeConfig{}, tracker, rng)
	if err != nil {
		t.Fatalf("new minimal genome: %v", err)
	}
	return genome
}

func mustCompile(t *testing.T, genome model.Genome) *nn.GenomeNetwork {
	t.Helper()
	network, err := nn.Compile(genome)
	if err != nil {
		t.Fatalf("compile %s: %v", genome.ID, err)
	}
	return network
}
