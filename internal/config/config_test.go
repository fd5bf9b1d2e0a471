package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultsLoad(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("unexpected backend: got=%s want=memory", cfg.Store.Backend)
	}
	if cfg.PPO.Scape != "target-reach" || cfg.PPO.Gamma != 0.99 || !cfg.PPO.NormalizeAdvantages {
		t.Fatalf("unexpected ppo defaults: %+v", cfg.PPO)
	}
	if cfg.NEAT.PopulationSize != 50 || cfg.NEAT.Mutation.AddNeuron != 0.05 || cfg.NEAT.Compatibility.Weight != 0.4 {
		t.Fatalf("unexpected neat defaults: %+v", cfg.NEAT)
	}
	if !reflect.DeepEqual(cfg.Network.HiddenLayers, []int{32, 32}) {
		t.Fatalf("unexpected hidden layers: %v", cfg.Network.HiddenLayers)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte("ppo:\n  agents: 8\n  learning_rate: 0.001\nneat:\n  mutation:\n    add_neuron: 0.2\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PPO.Agents != 8 || cfg.PPO.LearningRate != 0.001 {
		t.Fatalf("overrides not applied: %+v", cfg.PPO)
	}
	if cfg.PPO.Epochs != 4 || cfg.NEAT.Mutation.AddSynapse != 0.1 {
		t.Fatalf("defaults lost on overlay: epochs=%d add_synapse=%f", cfg.PPO.Epochs, cfg.NEAT.Mutation.AddSynapse)
	}
	if cfg.NEAT.Mutation.AddNeuron != 0.2 {
		t.Fatalf("nested override not applied: got=%f want=0.2", cfg.NEAT.Mutation.AddNeuron)
	}
}

func TestLoadRejectsInvalidStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("store:\n  backend: postgres\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected unsupported backend error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.NEAT.Scape = "cart-pole-lite"
	cfg.Store.Backend = "sqlite"

	path := filepath.Join(t.TempDir(), "written.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", loaded, cfg)
	}
}
