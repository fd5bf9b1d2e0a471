package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax returns exp(v)/sum(exp(v)). The maximum is subtracted before
// exponentiating so large logits do not overflow.
func Softmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	peak := floats.Max(v)
	sum := 0.0
	for i, x := range v {
		out[i] = math.Exp(x - peak)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// LogSoftmax returns log(Softmax(v)) computed as v - max - log(sum(exp(v-max))).
func LogSoftmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	peak := floats.Max(v)
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - peak)
	}
	norm := peak + math.Log(sum)
	for i, x := range v {
		out[i] = x - norm
	}
	return out
}
