package genotype

import "gamelearn/internal/model"

// CloneGenome returns a deep copy of g that shares no gene storage.
func CloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	return out
}

// CloneGenomeWithID clones g under a new genome ID. Gene IDs and innovation
// numbers are kept so the copy still aligns with g during crossover.
func CloneGenomeWithID(g model.Genome, id string) model.Genome {
	out := CloneGenome(g)
	if id != "" {
		out.ID = id
	}
	return out
}
