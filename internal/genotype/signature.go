package genotype

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"gamelearn/internal/model"
)

type TopologySummary struct {
	TotalNeurons           int            `json:"total_neurons"`
	InputNeurons           int            `json:"input_neurons"`
	HiddenNeurons          int            `json:"hidden_neurons"`
	OutputNeurons          int            `json:"output_neurons"`
	TotalSynapses          int            `json:"total_synapses"`
	EnabledSynapses        int            `json:"enabled_synapses"`
	ActivationDistribution map[string]int `json:"activation_distribution"`
}

type GenomeSignature struct {
	Fingerprint string          `json:"fingerprint"`
	Summary     TopologySummary `json:"summary"`
}

// ComputeGenomeSignature summarizes a genome's shape and hashes its enabled
// wiring. Weights and biases do not affect the fingerprint.
func ComputeGenomeSignature(genome model.Genome) GenomeSignature {
	actDist := make(map[string]int)
	summary := TopologySummary{
		TotalNeurons:           len(genome.Neurons),
		TotalSynapses:          len(genome.Synapses),
		ActivationDistribution: actDist,
	}
	for _, n := range genome.Neurons {
		switch n.Role {
		case model.RoleInput, model.RoleBias:
			summary.InputNeurons++
			continue
		case model.RoleHidden:
			summary.HiddenNeurons++
		case model.RoleOutput:
			summary.OutputNeurons++
		}
		actDist[n.Activation]++
	}

	edges := make([]string, 0, len(genome.Synapses))
	for _, s := range genome.Synapses {
		if !s.Enabled {
			continue
		}
		summary.EnabledSynapses++
		edges = append(edges, fmt.Sprintf("%d>%d", s.From, s.To))
	}
	sort.Strings(edges)

	parts := []string{
		fmt.Sprintf("i=%d", summary.InputNeurons),
		fmt.Sprintf("h=%d", summary.HiddenNeurons),
		fmt.Sprintf("o=%d", summary.OutputNeurons),
	}
	keys := make([]string, 0, len(actDist))
	for k := range actDist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("af:%s=%d", k, actDist[k]))
	}
	parts = append(parts, edges...)

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return GenomeSignature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}
