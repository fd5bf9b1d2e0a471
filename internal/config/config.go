// Package config loads run settings from YAML on top of embedded defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Network   NetworkConfig   `yaml:"network"`
	PPO       PPOConfig       `yaml:"ppo"`
	NEAT      NEATConfig      `yaml:"neat"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"` // memory or sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

type TelemetryConfig struct {
	OutputDir string `yaml:"output_dir"` // empty disables CSV output
}

// NetworkConfig shapes the PPO actor and critic.
type NetworkConfig struct {
	HiddenLayers []int  `yaml:"hidden_layers"`
	Activation   string `yaml:"activation"`
}

type PPOConfig struct {
	Scape                 string  `yaml:"scape"`
	Agents                int     `yaml:"agents"`
	Iterations            int     `yaml:"iterations"`
	EpisodesPerAgent      int     `yaml:"episodes_per_agent"`
	Seed                  int64   `yaml:"seed"`
	NormalizeObservations bool    `yaml:"normalize_observations"`
	InitLogStd            float64 `yaml:"init_log_std"`

	Gamma               float64 `yaml:"gamma"`
	Lambda              float64 `yaml:"lambda"`
	ClipEpsilon         float64 `yaml:"clip_epsilon"`
	ValueClip           float64 `yaml:"value_clip"` // 0 disables value clipping
	ValueCoef           float64 `yaml:"value_coef"`
	EntropyCoef         float64 `yaml:"entropy_coef"`
	LearningRate        float64 `yaml:"learning_rate"`
	Epochs              int     `yaml:"epochs"`
	MinibatchSize       int     `yaml:"minibatch_size"`
	MaxGradNorm         float64 `yaml:"max_grad_norm"`
	TargetKL            float64 `yaml:"target_kl"`
	NormalizeAdvantages bool    `yaml:"normalize_advantages"`
}

type NEATConfig struct {
	Scape            string  `yaml:"scape"`
	PopulationSize   int     `yaml:"population_size"`
	Generations      int     `yaml:"generations"`
	FitnessGoal      float64 `yaml:"fitness_goal"` // 0 runs every generation
	EliteCount       int     `yaml:"elite_count"`
	SurvivalFraction float64 `yaml:"survival_fraction"`
	CrossoverRate    float64 `yaml:"crossover_rate"`
	TargetSpecies    int     `yaml:"target_species"` // 0 derives it from population size
	StagnationLimit  int     `yaml:"stagnation_limit"`
	Workers          int     `yaml:"workers"`
	Seed             int64   `yaml:"seed"`
	Selector         string  `yaml:"selector"`
	Postprocessor    string  `yaml:"postprocessor"`
	HiddenActivation string  `yaml:"hidden_activation"`
	WeightScale      float64 `yaml:"weight_scale"`

	Mutation      MutationConfig      `yaml:"mutation"`
	Compatibility CompatibilityConfig `yaml:"compatibility"`
}

// MutationConfig holds per-child probabilities of each mutation operator.
type MutationConfig struct {
	PerturbWeights float64 `yaml:"perturb_weights"`
	PerturbBiases  float64 `yaml:"perturb_biases"`
	AddSynapse     float64 `yaml:"add_synapse"`
	AddNeuron      float64 `yaml:"add_neuron"`
	ToggleSynapse  float64 `yaml:"toggle_synapse"`
	WeightPower    float64 `yaml:"weight_power"`
	ReplaceRate    float64 `yaml:"replace_rate"`
}

type CompatibilityConfig struct {
	Excess   float64 `yaml:"excess"`
	Disjoint float64 `yaml:"disjoint"`
	Weight   float64 `yaml:"weight"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	return Load("")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file overwrite defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that are not owned by a trainer. Trainer
// hyperparameters are validated when the trainer is built.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported store.backend: %q", c.Store.Backend)
	}
	for i, size := range c.Network.HiddenLayers {
		if size <= 0 {
			return fmt.Errorf("network.hidden_layers[%d] must be > 0, got %d", i, size)
		}
	}
	if c.PPO.Agents <= 0 || c.PPO.Iterations <= 0 || c.PPO.EpisodesPerAgent <= 0 {
		return fmt.Errorf("ppo agents, iterations and episodes_per_agent must be > 0")
	}
	if c.NEAT.Generations <= 0 {
		return fmt.Errorf("neat.generations must be > 0, got %d", c.NEAT.Generations)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
