package storage

import (
	"context"
	"errors"

	"gamelearn/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists genomes, policies and per-run history. Get methods report
// a missing key with ok=false rather than an error.
type Store interface {
	Init(ctx context.Context) error
	SaveGenome(ctx context.Context, genome model.Genome) error
	GetGenome(ctx context.Context, id string) (model.Genome, bool, error)
	SavePopulation(ctx context.Context, population model.Population) error
	GetPopulation(ctx context.Context, id string) (model.Population, bool, error)
	SavePolicy(ctx context.Context, snapshot model.PolicySnapshot) error
	GetPolicy(ctx context.Context, id string) (model.PolicySnapshot, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveUpdateHistory(ctx context.Context, runID string, updates []model.UpdateRecord) error
	GetUpdateHistory(ctx context.Context, runID string) ([]model.UpdateRecord, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
