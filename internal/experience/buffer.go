package experience

import (
	"errors"
	"fmt"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

// Buffer accumulates one agent's samples into episodes. It belongs to a
// single agent and is not safe for concurrent use.
type Buffer struct {
	observationSize int
	actionSize      int
	open            *Episode
	completed       []*Episode
}

func NewBuffer(observationSize, actionSize int) (*Buffer, error) {
	if observationSize <= 0 {
		return nil, fmt.Errorf("observation size must be > 0, got %d", observationSize)
	}
	if actionSize <= 0 {
		return nil, fmt.Errorf("action size must be > 0, got %d", actionSize)
	}
	return &Buffer{
		observationSize: observationSize,
		actionSize:      actionSize,
		open:            NewEpisode(),
	}, nil
}

// Add appends s to the open episode. A done sample moves the episode to the
// completed list and opens a fresh one.
func (b *Buffer) Add(s Sample) error {
	if len(s.state) != b.observationSize {
		return fmt.Errorf("%w: observation size=%d sample=%d", ErrDimensionMismatch, b.observationSize, len(s.state))
	}
	if len(s.action) != b.actionSize {
		return fmt.Errorf("%w: action size=%d sample=%d", ErrDimensionMismatch, b.actionSize, len(s.action))
	}
	if len(s.logProbs) != b.actionSize {
		return fmt.Errorf("%w: action size=%d log probs=%d", ErrDimensionMismatch, b.actionSize, len(s.logProbs))
	}
	if err := b.open.Append(s); err != nil {
		return err
	}
	if b.open.Closed() {
		b.rotate()
	}
	return nil
}

// Truncate closes the open episode with the value of its last sample as the
// bootstrap. An empty open episode is left as is.
func (b *Buffer) Truncate() {
	if b.open.Len() == 0 {
		return
	}
	_ = b.open.Truncate()
	b.rotate()
}

func (b *Buffer) TruncateWith(bootstrap float64) {
	if b.open.Len() == 0 {
		return
	}
	_ = b.open.TruncateWith(bootstrap)
	b.rotate()
}

// Drain hands the completed episodes to the caller and forgets them. The
// open episode stays in the buffer.
func (b *Buffer) Drain() []*Episode {
	out := b.completed
	b.completed = nil
	return out
}

// Clear drops everything, including the open episode.
func (b *Buffer) Clear() {
	b.completed = nil
	b.open = NewEpisode()
}

func (b *Buffer) OpenLen() int {
	return b.open.Len()
}

func (b *Buffer) CompletedEpisodes() int {
	return len(b.completed)
}

// CompletedSamples counts samples across completed episodes.
func (b *Buffer) CompletedSamples() int {
	total := 0
	for _, e := range b.completed {
		total += e.Len()
	}
	return total
}

func (b *Buffer) ObservationSize() int { return b.observationSize }
func (b *Buffer) ActionSize() int      { return b.actionSize }

func (b *Buffer) rotate() {
	b.completed = append(b.completed, b.open)
	b.open = NewEpisode()
}
