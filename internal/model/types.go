package model

const (
	SchemaVersion = 1
	CodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CurrentVersion stamps a record with the versions this build writes.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: SchemaVersion, CodecVersion: CodecVersion}
}

// NeuronRole distinguishes the fixed interface neurons of a genome from the
// hidden neurons grown by mutation.
type NeuronRole string

const (
	RoleInput  NeuronRole = "input"
	RoleBias   NeuronRole = "bias"
	RoleHidden NeuronRole = "hidden"
	RoleOutput NeuronRole = "output"
)

// Genome is one NEAT candidate network: neuron genes plus synapse genes keyed
// by innovation number.
type Genome struct {
	VersionedRecord
	ID       string    `json:"id"`
	Neurons  []Neuron  `json:"neurons"`
	Synapses []Synapse `json:"synapses"`
	Fitness  float64   `json:"fitness"`
}

type Neuron struct {
	ID         int        `json:"id"`
	Role       NeuronRole `json:"role"`
	Activation string     `json:"activation"`
	Bias       float64    `json:"bias"`
}

type Synapse struct {
	Innovation int64   `json:"innovation"`
	From       int     `json:"from"`
	To         int     `json:"to"`
	Weight     float64 `json:"weight"`
	Enabled    bool    `json:"enabled"`
}

type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	GenomeIDs  []string `json:"genome_ids"`
	Generation int      `json:"generation"`
}

// LayerWeights is the persisted form of one dense layer: Weights is row-major
// with Rows = output size and Cols = input size.
type LayerWeights struct {
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Weights    []float64 `json:"weights"`
	Biases     []float64 `json:"biases"`
	Activation string    `json:"activation"`
}

type NetworkWeights struct {
	InputSize int            `json:"input_size"`
	Layers    []LayerWeights `json:"layers"`
}

// PolicySnapshot is the persisted actor/critic pair of a PPO policy together
// with the observation bounds it was trained against.
type PolicySnapshot struct {
	VersionedRecord
	ID             string         `json:"id"`
	ActionKind     string         `json:"action_kind"`
	ActionSize     int            `json:"action_size"`
	ActionBranches []int          `json:"action_branches,omitempty"`
	Actor          NetworkWeights `json:"actor"`
	Critic         NetworkWeights `json:"critic"`
	LogStd         []float64      `json:"log_std,omitempty"`
	ObservationMin []float64      `json:"observation_min,omitempty"`
	ObservationMax []float64      `json:"observation_max,omitempty"`
	Updates        int            `json:"updates"`
}
