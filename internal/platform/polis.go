package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"gamelearn/internal/storage"
	"gamelearn/internal/telemetry"
)

var (
	ErrNotStarted = errors.New("polis is not initialized")
	ErrRunActive  = errors.New("run is already active")
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
	// Output receives CSV telemetry. Nil disables it.
	Output *telemetry.OutputManager
}

// Polis owns the store and telemetry shared by training runs. Runs with
// distinct IDs may execute concurrently.
type Polis struct {
	store  storage.Store
	logger *slog.Logger
	output *telemetry.OutputManager

	mu      sync.RWMutex
	started bool
	runs    map[string]struct{}
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Polis{
		store:  cfg.Store,
		logger: logger,
		output: cfg.Output,
		runs:   make(map[string]struct{}),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

// Close releases the store and telemetry files.
func (p *Polis) Close() error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	outErr := p.output.Close()
	if err := storage.CloseIfSupported(p.store); err != nil {
		return err
	}
	return outErr
}

// beginRun reserves runID, generating one when it is empty.
func (p *Polis) beginRun(runID, kind string) (string, error) {
	if runID == "" {
		runID = kind + "-" + uuid.NewString()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return "", ErrNotStarted
	}
	if _, active := p.runs[runID]; active {
		return "", fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	p.runs[runID] = struct{}{}
	return runID, nil
}

func (p *Polis) endRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}
