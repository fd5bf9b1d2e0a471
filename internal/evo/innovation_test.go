package evo

import (
	"math/rand"
	"testing"

	"gamelearn/internal/model"
)

func TestInnovationTrackerReusesLinks(t *testing.T) {
	tracker := NewInnovationTracker()
	a := tracker.Link(0, 3)
	b := tracker.Link(1, 3)
	if a == b {
		t.Fatalf("distinct links share innovation %d", a)
	}
	if again := tracker.Link(0, 3); again != a {
		t.Fatalf("link innovation not reused: got=%d want=%d", again, a)
	}
}

func TestInnovationTrackerSplitsPerGeneration(t *testing.T) {
	tracker := NewInnovationTracker()
	first := tracker.SplitNeuron(7)
	if again := tracker.SplitNeuron(7); again != first {
		t.Fatalf("split neuron not reused within generation: got=%d want=%d", again, first)
	}
	tracker.NextGeneration()
	if later := tracker.SplitNeuron(7); later == first {
		t.Fatalf("split neuron reused across generations: %d", later)
	}
}

func TestInnovationTrackerObserveRaisesCounters(t *testing.T) {
	tracker := NewInnovationTracker()
	tracker.Observe(newComplexLinearGenome("c", 1))
	if id := tracker.NewNeuronID(); id != 4 {
		t.Fatalf("unexpected next neuron id: got=%d want=4", id)
	}
	if innovation := tracker.Link(2, 3); innovation != 3 {
		t.Fatalf("observed link should keep its innovation: got=%d want=3", innovation)
	}
	if innovation := tracker.Link(1, 2); innovation != 5 {
		t.Fatalf("unexpected fresh innovation: got=%d want=5", innovation)
	}
}

func TestNewMinimalGenomeFullyConnects(t *testing.T) {
	tracker := NewInnovationTracker()
	rng := rand.New(rand.NewSource(1))
	a, err := NewMinimalGenome("a", 3, 2, GenomeConfig{OutputActivation: "tanh"}, tracker, rng)
	if err != nil {
		t.Fatalf("new minimal genome: %v", err)
	}
	if len(a.Neurons) != 3+1+2 {
		t.Fatalf("unexpected neuron count: got=%d want=6", len(a.Neurons))
	}
	if len(a.Synapses) != (3+1)*2 {
		t.Fatalf("unexpected synapse count: got=%d want=8", len(a.Synapses))
	}
	roles := map[model.NeuronRole]int{}
	for _, n := range a.Neurons {
		roles[n.Role]++
		if n.Role == model.RoleOutput && n.Activation != "tanh" {
			t.Fatalf("output activation: got=%s want=tanh", n.Activation)
		}
	}
	if roles[model.RoleInput] != 3 || roles[model.RoleBias] != 1 || roles[model.RoleOutput] != 2 {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if a.SchemaVersion != model.SchemaVersion || a.CodecVersion != model.CodecVersion {
		t.Fatalf("genome not version stamped: %+v", a.VersionedRecord)
	}

	b, err := NewMinimalGenome("b", 3, 2, GenomeConfig{}, tracker, rng)
	if err != nil {
		t.Fatalf("new minimal genome: %v", err)
	}
	for i := range a.Synapses {
		if a.Synapses[i].Innovation != b.Synapses[i].Innovation {
			t.Fatalf("minimal genomes should share innovations at %d: %d vs %d", i, a.Synapses[i].Innovation, b.Synapses[i].Innovation)
		}
	}
	if _, err := NewMinimalGenome("bad", 0, 1, GenomeConfig{}, tracker, rng); err == nil {
		t.Fatal("expected error for zero inputs")
	}
}
