package experience

// Sample is one environment step. It is immutable: the constructor copies its
// inputs and every accessor returns a copy.
type Sample struct {
	state    []float64
	action   []float64
	logProbs []float64
	value    float64
	reward   float64
	done     bool
}

// NewSample records one step. logProbs holds one log-probability per action
// dimension, captured when the action was chosen.
func NewSample(state, action, logProbs []float64, value, reward float64, done bool) Sample {
	return Sample{
		state:    append([]float64(nil), state...),
		action:   append([]float64(nil), action...),
		logProbs: append([]float64(nil), logProbs...),
		value:    value,
		reward:   reward,
		done:     done,
	}
}

func (s Sample) State() []float64 {
	return append([]float64(nil), s.state...)
}

func (s Sample) Action() []float64 {
	return append([]float64(nil), s.action...)
}

func (s Sample) LogProbs() []float64 {
	return append([]float64(nil), s.logProbs...)
}

func (s Sample) Value() float64  { return s.value }
func (s Sample) Reward() float64 { return s.reward }
func (s Sample) Done() bool      { return s.done }

func (s Sample) StateLen() int  { return len(s.state) }
func (s Sample) ActionLen() int { return len(s.action) }

// LogProb returns the summed log-probability over all action dimensions.
func (s Sample) LogProb() float64 {
	total := 0.0
	for _, lp := range s.logProbs {
		total += lp
	}
	return total
}
