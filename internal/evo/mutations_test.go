package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"gamelearn/internal/model"
	"gamelearn/internal/nn"
)

func TestPerturbWeightsChangesEveryWeightAndKeepsInput(t *testing.T) {
	tracker := NewInnovationTracker()
	rng := rand.New(rand.NewSource(2))
	genome := newMinimal(t, tracker, rng, "g")
	original := make([]float64, len(genome.Synapses))
	for i, s := range genome.Synapses {
		original[i] = s.Weight
	}
	op := &PerturbWeights{Rand: rng, Power: 0.5}
	mutated, err := op.Apply(context.Background(), genome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i := range genome.Synapses {
		if mutated.Synapses[i].Weight == genome.Synapses[i].Weight {
			t.Fatalf("weight %d unchanged", i)
		}
	}
	for i := range genome.Synapses {
		if genome.Synapses[i].Weight != original[i] {
			t.Fatal("perturbation mutated its input")
		}
	}

	_, err = op.Apply(context.Background(), model.Genome{})
	if !errors.Is(err, ErrNoSynapses) {
		t.Fatalf("expected ErrNoSynapses, got %v", err)
	}
}

func TestPerturbBiasesSkipsInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	genome := newComplexLinearGenome("c", 1)
	mutated, err := (&PerturbBiases{Rand: rng, Power: 1}).Apply(context.Background(), genome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if mutated.Neurons[0].Bias != 0 {
		t.Fatalf("input bias changed: %f", mutated.Neurons[0].Bias)
	}
	for _, n := range mutated.Neurons[1:] {
		if n.Bias == 0 {
			t.Fatalf("neuron %d bias unchanged", n.ID)
		}
	}
}

func TestAddSynapseStaysFeedForward(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	tracker := NewInnovationTracker()
	genome := newComplexLinearGenome("c", 1)
	tracker.Observe(genome)
	op := &AddSynapse{Rand: rng, Tracker: tracker}

	for i := 0; i < 10; i++ {
		next, err := op.Apply(context.Background(), genome)
		if errors.Is(err, ErrNoMutationChoice) {
			break
		}
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		added := next.Synapses[len(next.Synapses)-1]
		if added.To == 0 {
			t.Fatalf("synapse targets input neuron: %+v", added)
		}
		for _, s := range genome.Synapses {
			if s.From == added.From && s.To == added.To {
				t.Fatalf("duplicate synapse added: %+v", added)
			}
		}
		if _, err := nn.Compile(next); err != nil {
			t.Fatalf("mutated genome does not compile: %v", err)
		}
		genome = next
	}

	// 0->2->3->1 plus every legal shortcut leaves nothing to add
	if _, err := op.Apply(context.Background(), genome); !errors.Is(err, ErrNoMutationChoice) {
		t.Fatalf("expected ErrNoMutationChoice on saturated genome, got %v", err)
	}
}

func TestAddNeuronSplitsSynapse(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tracker := NewInnovationTracker()
	genome := newLinearGenome("l", 0.7)
	tracker.Observe(genome)
	op := &AddNeuron{Rand: rng, Tracker: tracker, Activation: "identity"}

	mutated, err := op.Apply(context.Background(), genome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if mutated.Synapses[0].Enabled {
		t.Fatal("split synapse should be disabled")
	}
	if len(mutated.Neurons) != 3 || mutated.Neurons[2].Role != model.RoleHidden {
		t.Fatalf("expected one new hidden neuron: %+v", mutated.Neurons)
	}
	in, out := mutated.Synapses[1], mutated.Synapses[2]
	hidden := mutated.Neurons[2].ID
	if in.From != 0 || in.To != hidden || in.Weight != 1 {
		t.Fatalf("unexpected in synapse: %+v", in)
	}
	if out.From != hidden || out.To != 1 || out.Weight != 0.7 {
		t.Fatalf("unexpected out synapse: %+v", out)
	}

	// identity hidden neuron with in-weight 1 preserves the function
	before, _ := mustCompile(t, genome).Activate([]float64{2})
	after, _ := mustCompile(t, mutated).Activate([]float64{2})
	if before[0] != after[0] {
		t.Fatalf("split changed output: before=%f after=%f", before[0], after[0])
	}

	twin, err := op.Apply(context.Background(), genome)
	if err != nil {
		t.Fatalf("apply twin: %v", err)
	}
	if twin.Neurons[2].ID != hidden || twin.Synapses[1].Innovation != in.Innovation {
		t.Fatal("same split in one generation should reuse neuron id and innovations")
	}
}

func TestAddNeuronRequiresEnabledSynapse(t *testing.T) {
	genome := newLinearGenome("l", 1)
	genome.Synapses[0].Enabled = false
	op := &AddNeuron{Rand: rand.New(rand.NewSource(1)), Tracker: NewInnovationTracker()}
	if _, err := op.Apply(context.Background(), genome); !errors.Is(err, ErrNoSynapses) {
		t.Fatalf("expected ErrNoSynapses, got %v", err)
	}
}

func TestToggleSynapseFlipsOne(t *testing.T) {
	genome := newComplexLinearGenome("c", 1)
	mutated, err := (&ToggleSynapse{Rand: rand.New(rand.NewSource(6))}).Apply(context.Background(), genome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	flipped := 0
	for i := range genome.Synapses {
		if genome.Synapses[i].Enabled != mutated.Synapses[i].Enabled {
			flipped++
		}
	}
	if flipped != 1 {
		t.Fatalf("unexpected flipped count: got=%d want=1", flipped)
	}
}

func TestMutatorAppliesByProbability(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tracker := NewInnovationTracker()
	genome := newMinimal(t, tracker, rng, "g")

	always := NewMutator(rng, tracker, MutationRates{PerturbWeights: 1, AddNeuron: 1, WeightPower: 0.1}, "tanh")
	mutated, applied, err := always.Mutate(context.Background(), genome)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(applied) != 2 || applied[0] != "perturb_weights" || applied[1] != "add_neuron" {
		t.Fatalf("unexpected applied operators: %v", applied)
	}
	if len(mutated.Neurons) != len(genome.Neurons)+1 {
		t.Fatalf("add_neuron did not run: neurons=%d", len(mutated.Neurons))
	}

	never := NewMutator(rng, tracker, MutationRates{}, "tanh")
	same, applied, err := never.Mutate(context.Background(), genome)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(applied) != 0 || len(same.Synapses) != len(genome.Synapses) {
		t.Fatalf("zero rates should not mutate: applied=%v", applied)
	}
}

func TestMutatorSkipsInapplicableOperators(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	genome := newLinearGenome("l", 1)
	genome.Synapses[0].Enabled = false
	m := NewMutator(rng, NewInnovationTracker(), MutationRates{AddNeuron: 1}, "tanh")
	_, applied, err := m.Mutate(context.Background(), genome)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("inapplicable operator reported as applied: %v", applied)
	}
}
