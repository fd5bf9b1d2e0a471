// Package telemetry writes per-run training history as CSV files.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"gamelearn/internal/config"
	"gamelearn/internal/model"
)

// SpeciesRow is one species of one NEAT generation.
type SpeciesRow struct {
	Generation  int     `csv:"generation"`
	Key         string  `csv:"species"`
	Size        int     `csv:"size"`
	MeanFitness float64 `csv:"mean_fitness"`
	BestFitness float64 `csv:"best_fitness"`
}

// csvFile is created on the first write so a run only leaves the files it
// actually produced.
type csvFile struct {
	path          string
	file          *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if c.file == nil {
		f, err := os.Create(c.path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Base(c.path), err)
		}
		c.file = f
	}
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.file); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.file)
}

func (c *csvFile) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// OutputManager handles structured run output. A nil *OutputManager is
// valid and discards everything.
type OutputManager struct {
	dir         string
	updates     csvFile
	generations csvFile
	species     csvFile
}

// NewOutputManager creates the output directory. Returns nil if dir is empty
// (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &OutputManager{
		dir:         dir,
		updates:     csvFile{path: filepath.Join(dir, "updates.csv")},
		generations: csvFile{path: filepath.Join(dir, "generations.csv")},
		species:     csvFile{path: filepath.Join(dir, "species.csv")},
	}, nil
}

// WriteConfig saves the run configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteUpdate appends one PPO update to updates.csv.
func (om *OutputManager) WriteUpdate(record model.UpdateRecord) error {
	if om == nil {
		return nil
	}
	if err := om.updates.write([]model.UpdateRecord{record}); err != nil {
		return fmt.Errorf("writing update: %w", err)
	}
	return nil
}

// WriteGeneration appends one NEAT generation to generations.csv and its
// species to species.csv.
func (om *OutputManager) WriteGeneration(diagnostics model.GenerationDiagnostics, species []SpeciesRow) error {
	if om == nil {
		return nil
	}
	if err := om.generations.write([]model.GenerationDiagnostics{diagnostics}); err != nil {
		return fmt.Errorf("writing generation: %w", err)
	}
	if len(species) == 0 {
		return nil
	}
	if err := om.species.write(species); err != nil {
		return fmt.Errorf("writing species: %w", err)
	}
	return nil
}

// WriteChampion saves the best genome of a run as JSON.
func (om *OutputManager) WriteChampion(genome model.Genome) error {
	if om == nil {
		return nil
	}
	data, err := json.MarshalIndent(genome, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling champion: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "champion.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing champion.json: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*csvFile{&om.updates, &om.generations, &om.species} {
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
