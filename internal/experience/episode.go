package experience

import "errors"

var ErrEpisodeClosed = errors.New("episode is closed")

// Episode is the ordered run of samples for one rollout. It is closed either
// by a sample with done set or by Truncate.
type Episode struct {
	samples   []Sample
	closed    bool
	truncated bool
	bootstrap float64
}

func NewEpisode() *Episode {
	return &Episode{}
}

func (e *Episode) Append(s Sample) error {
	if e.closed {
		return ErrEpisodeClosed
	}
	e.samples = append(e.samples, s)
	if s.done {
		e.closed = true
	}
	return nil
}

// Truncate closes the episode without a terminal sample, bootstrapping from
// the value of its last sample.
func (e *Episode) Truncate() error {
	bootstrap := 0.0
	if n := len(e.samples); n > 0 {
		bootstrap = e.samples[n-1].value
	}
	return e.TruncateWith(bootstrap)
}

// TruncateWith closes the episode with an explicit bootstrap value, usually
// the critic's estimate of the state after the last sample.
func (e *Episode) TruncateWith(bootstrap float64) error {
	if e.closed {
		return ErrEpisodeClosed
	}
	e.closed = true
	e.truncated = true
	e.bootstrap = bootstrap
	return nil
}

func (e *Episode) Len() int {
	return len(e.samples)
}

func (e *Episode) Sample(i int) Sample {
	return e.samples[i]
}

// Samples returns the samples in temporal order. The slice is a copy.
func (e *Episode) Samples() []Sample {
	return append([]Sample(nil), e.samples...)
}

func (e *Episode) Closed() bool {
	return e.closed
}

// Terminated reports whether the episode ended with a done sample.
func (e *Episode) Terminated() bool {
	return e.closed && !e.truncated
}

func (e *Episode) Truncated() bool {
	return e.truncated
}

// Bootstrap is the value estimate following the last sample; zero for a
// terminated or still open episode.
func (e *Episode) Bootstrap() float64 {
	if !e.truncated {
		return 0
	}
	return e.bootstrap
}

func (e *Episode) Return() float64 {
	total := 0.0
	for _, s := range e.samples {
		total += s.reward
	}
	return total
}
