package nn

import (
	"errors"
	"fmt"

	"gamelearn/internal/model"
)

var ErrCyclicGenome = errors.New("genome contains a cycle")

type compiledLink struct {
	from   int
	weight float64
}

type compiledNeuron struct {
	slot     int
	bias     float64
	act      ActivationFunc
	incoming []compiledLink
}

// GenomeNetwork is the executable form of a genome. It holds no mutable
// state, so one compiled network may be activated from many goroutines.
type GenomeNetwork struct {
	size    int
	inputs  []int
	biases  []int
	outputs []int
	order   []compiledNeuron
}

// Compile orders the genome's neurons topologically over its enabled
// synapses. Input and bias neurons keep the order they appear in the genome.
func Compile(genome model.Genome) (*GenomeNetwork, error) {
	slots := make(map[int]int, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if _, dup := slots[neuron.ID]; dup {
			return nil, fmt.Errorf("duplicate neuron id %d", neuron.ID)
		}
		slots[neuron.ID] = i
	}

	incoming := make([][]compiledLink, len(genome.Neurons))
	outgoing := make([][]int, len(genome.Neurons))
	indegree := make([]int, len(genome.Neurons))
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		from, ok := slots[synapse.From]
		if !ok {
			return nil, fmt.Errorf("synapse %d: unknown source neuron %d", synapse.Innovation, synapse.From)
		}
		to, ok := slots[synapse.To]
		if !ok {
			return nil, fmt.Errorf("synapse %d: unknown target neuron %d", synapse.Innovation, synapse.To)
		}
		switch genome.Neurons[to].Role {
		case model.RoleInput, model.RoleBias:
			return nil, fmt.Errorf("synapse %d: targets %s neuron %d", synapse.Innovation, genome.Neurons[to].Role, synapse.To)
		}
		incoming[to] = append(incoming[to], compiledLink{from: from, weight: synapse.Weight})
		outgoing[from] = append(outgoing[from], to)
		indegree[to]++
	}

	net := &GenomeNetwork{size: len(genome.Neurons)}
	queue := make([]int, 0, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		switch neuron.Role {
		case model.RoleInput:
			net.inputs = append(net.inputs, i)
		case model.RoleBias:
			net.biases = append(net.biases, i)
		case model.RoleOutput:
			net.outputs = append(net.outputs, i)
		}
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		slot := queue[0]
		queue = queue[1:]
		visited++
		neuron := genome.Neurons[slot]
		if neuron.Role != model.RoleInput && neuron.Role != model.RoleBias {
			act, err := GetActivation(neuron.Activation)
			if err != nil {
				return nil, fmt.Errorf("neuron %d: %w", neuron.ID, err)
			}
			net.order = append(net.order, compiledNeuron{
				slot:     slot,
				bias:     neuron.Bias,
				act:      act.Func,
				incoming: incoming[slot],
			})
		}
		for _, next := range outgoing[slot] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(genome.Neurons) {
		return nil, ErrCyclicGenome
	}
	return net, nil
}

func (n *GenomeNetwork) InputSize() int {
	return len(n.inputs)
}

func (n *GenomeNetwork) OutputSize() int {
	return len(n.outputs)
}

// Activate evaluates the network for one input vector.
func (n *GenomeNetwork) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("%w: inputs=%d got=%d", ErrDimensionMismatch, len(n.inputs), len(inputs))
	}
	values := make([]float64, n.size)
	for i, slot := range n.inputs {
		values[slot] = inputs[i]
	}
	for _, slot := range n.biases {
		values[slot] = 1
	}
	for _, neuron := range n.order {
		total := neuron.bias
		for _, link := range neuron.incoming {
			total += values[link.from] * link.weight
		}
		values[neuron.slot] = neuron.act(total)
	}
	out := make([]float64, len(n.outputs))
	for i, slot := range n.outputs {
		out[i] = values[slot]
	}
	return out, nil
}
