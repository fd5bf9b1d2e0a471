package model

// GenerationDiagnostics summarizes one evaluated NEAT generation.
type GenerationDiagnostics struct {
	Generation           int     `json:"generation" csv:"generation"`
	BestFitness          float64 `json:"best_fitness" csv:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness" csv:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness" csv:"min_fitness"`
	SpeciesCount         int     `json:"species_count" csv:"species_count"`
	FingerprintDiversity int     `json:"fingerprint_diversity" csv:"fingerprint_diversity"`
	SpeciationThreshold  float64 `json:"speciation_threshold" csv:"speciation_threshold"`
	MeanNeurons          float64 `json:"mean_neurons" csv:"mean_neurons"`
	MeanSynapses         float64 `json:"mean_synapses" csv:"mean_synapses"`
	CulledGenomes        int     `json:"culled_genomes" csv:"culled_genomes"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID    string `json:"genome_id"`
	ParentID    string `json:"parent_id"`
	MateID      string `json:"mate_id,omitempty"`
	Generation  int    `json:"generation"`
	Operation   string `json:"operation"`
	SpeciesKey  string `json:"species_key,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// UpdateRecord summarizes one PPO update over a rollout batch.
type UpdateRecord struct {
	Update       int     `json:"update" csv:"update"`
	Samples      int     `json:"samples" csv:"samples"`
	Episodes     int     `json:"episodes" csv:"episodes"`
	MeanReturn   float64 `json:"mean_return" csv:"mean_return"`
	PolicyLoss   float64 `json:"policy_loss" csv:"policy_loss"`
	ValueLoss    float64 `json:"value_loss" csv:"value_loss"`
	Entropy      float64 `json:"entropy" csv:"entropy"`
	ApproxKL     float64 `json:"approx_kl" csv:"approx_kl"`
	ClipFraction float64 `json:"clip_fraction" csv:"clip_fraction"`
	EpochsRun    int     `json:"epochs_run" csv:"epochs_run"`
	EarlyStopped bool    `json:"early_stopped" csv:"early_stopped"`
	ExplainedVar float64 `json:"explained_variance" csv:"explained_variance"`
}

// RunRecord identifies one training run and its outcome.
type RunRecord struct {
	VersionedRecord
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Scape      string  `json:"scape"`
	Seed       int64   `json:"seed"`
	Steps      int     `json:"steps"`
	BestScore  float64 `json:"best_score"`
	ArtifactID string  `json:"artifact_id,omitempty"`
}
