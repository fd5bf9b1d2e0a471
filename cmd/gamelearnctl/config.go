package main

import (
	"gamelearn/internal/config"
	"gamelearn/internal/evo"
	"gamelearn/internal/platform"
	"gamelearn/internal/ppo"
)

func ppoConfigFrom(cfg *config.Config) platform.PPOConfig {
	c := cfg.PPO
	return platform.PPOConfig{
		Scape:                 c.Scape,
		Agents:                c.Agents,
		Iterations:            c.Iterations,
		EpisodesPerAgent:      c.EpisodesPerAgent,
		Seed:                  c.Seed,
		Hidden:                append([]int(nil), cfg.Network.HiddenLayers...),
		Activation:            cfg.Network.Activation,
		InitLogStd:            c.InitLogStd,
		NormalizeObservations: c.NormalizeObservations,
		Trainer: ppo.Config{
			Gamma:               c.Gamma,
			Lambda:              c.Lambda,
			ClipEpsilon:         c.ClipEpsilon,
			ValueClip:           c.ValueClip,
			ValueCoef:           c.ValueCoef,
			EntropyCoef:         c.EntropyCoef,
			LearningRate:        c.LearningRate,
			Epochs:              c.Epochs,
			MinibatchSize:       c.MinibatchSize,
			MaxGradNorm:         c.MaxGradNorm,
			TargetKL:            c.TargetKL,
			NormalizeAdvantages: c.NormalizeAdvantages,
		},
	}
}

// neatConfigFrom resolves the named selector and postprocessor. Inputs,
// outputs and the evaluator are left for the platform to derive from the
// scape.
func neatConfigFrom(cfg *config.Config) (platform.NEATConfig, error) {
	c := cfg.NEAT
	selector, err := evo.ResolveSelector(c.Selector)
	if err != nil {
		return platform.NEATConfig{}, err
	}
	postprocessor, err := evo.ResolvePostprocessor(c.Postprocessor)
	if err != nil {
		return platform.NEATConfig{}, err
	}

	trainer := evo.DefaultConfig()
	trainer.Genome = evo.GenomeConfig{
		HiddenActivation: c.HiddenActivation,
		WeightScale:      c.WeightScale,
	}
	trainer.Mutation = evo.MutationRates{
		PerturbWeights: c.Mutation.PerturbWeights,
		PerturbBiases:  c.Mutation.PerturbBiases,
		AddSynapse:     c.Mutation.AddSynapse,
		AddNeuron:      c.Mutation.AddNeuron,
		ToggleSynapse:  c.Mutation.ToggleSynapse,
		WeightPower:    c.Mutation.WeightPower,
		ReplaceRate:    c.Mutation.ReplaceRate,
	}
	trainer.Compatibility = evo.CompatibilityCoefficients{
		Excess:   c.Compatibility.Excess,
		Disjoint: c.Compatibility.Disjoint,
		Weight:   c.Compatibility.Weight,
	}
	trainer.Selector = selector
	trainer.Postprocessor = postprocessor
	trainer.PopulationSize = c.PopulationSize
	trainer.EliteCount = c.EliteCount
	trainer.SurvivalFraction = c.SurvivalFraction
	trainer.CrossoverRate = c.CrossoverRate
	trainer.TargetSpecies = c.TargetSpecies
	trainer.StagnationLimit = c.StagnationLimit
	trainer.Workers = c.Workers
	trainer.Seed = c.Seed

	return platform.NEATConfig{
		Scape:       c.Scape,
		Generations: c.Generations,
		FitnessGoal: c.FitnessGoal,
		Trainer:     trainer,
	}, nil
}
