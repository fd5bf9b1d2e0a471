package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gamelearn/internal/model"
)

var ErrVersionMismatch = errors.New("record version mismatch")

// JSON has no infinities, so non-finite fitness values are stored clamped to
// the largest finite float.

func EncodeGenome(g model.Genome) ([]byte, error) {
	g.Fitness = finite(g.Fitness)
	return json.Marshal(g)
}

func DecodeGenome(data []byte) (model.Genome, error) {
	var genome model.Genome
	if err := json.Unmarshal(data, &genome); err != nil {
		return model.Genome{}, err
	}
	if err := checkVersion(genome.VersionedRecord); err != nil {
		return model.Genome{}, err
	}
	return genome, nil
}

func EncodePopulation(p model.Population) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.Population, error) {
	var population model.Population
	if err := json.Unmarshal(data, &population); err != nil {
		return model.Population{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.Population{}, err
	}
	return population, nil
}

func EncodePolicy(p model.PolicySnapshot) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePolicy(data []byte) (model.PolicySnapshot, error) {
	var snapshot model.PolicySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.PolicySnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.PolicySnapshot{}, err
	}
	return snapshot, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	r.BestScore = finite(r.BestScore)
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, fmt.Errorf("lineage %s: %w", record.GenomeID, err)
		}
	}
	return records, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	for i, d := range diagnostics {
		d.BestFitness = finite(d.BestFitness)
		d.MeanFitness = finite(d.MeanFitness)
		d.MinFitness = finite(d.MinFitness)
		out[i] = d
	}
	return json.Marshal(out)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func EncodeUpdateHistory(updates []model.UpdateRecord) ([]byte, error) {
	return json.Marshal(updates)
}

func DecodeUpdateHistory(data []byte) ([]model.UpdateRecord, error) {
	var updates []model.UpdateRecord
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func finite(x float64) float64 {
	switch {
	case math.IsInf(x, 1):
		return math.MaxFloat64
	case math.IsNaN(x), math.IsInf(x, -1):
		return -math.MaxFloat64
	default:
		return x
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != model.SchemaVersion || v.CodecVersion != model.CodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
