package ppo

// dualClip bounds the objective from below for negative advantages so a
// sample whose ratio has exploded cannot dominate the update.
const dualClip = 3.0

// ClippedSurrogate returns min(r*A, clip(r, 1-eps, 1+eps)*A) and its
// derivative with respect to r. The derivative is zero once r has left the
// clip band in the direction the advantage favours. For A < 0 the objective is
// additionally floored at dualClip*A, so |d/dr| <= |A| and the derivative
// with respect to log r stays within max(1+eps, dualClip)*|A|.
func ClippedSurrogate(ratio, advantage, epsilon float64) (float64, float64) {
	unclipped := ratio * advantage
	clipped := clamp(ratio, 1-epsilon, 1+epsilon) * advantage
	objective, grad := unclipped, advantage
	if clipped < unclipped {
		objective, grad = clipped, 0
	}
	if advantage < 0 && objective < dualClip*advantage {
		return dualClip * advantage, 0
	}
	return objective, grad
}

// ClippedValueLoss is 0.5*max((v-R)^2, (vclip-R)^2) where vclip keeps v
// within clip of the value recorded at sample time. It returns the loss and
// its derivative with respect to v. A non-positive clip gives plain MSE.
func ClippedValueLoss(value, oldValue, target, clip float64) (float64, float64) {
	unclipped := value - target
	if clip <= 0 {
		return 0.5 * unclipped * unclipped, unclipped
	}
	delta := value - oldValue
	clippedErr := oldValue + clamp(delta, -clip, clip) - target
	if unclipped*unclipped >= clippedErr*clippedErr {
		return 0.5 * unclipped * unclipped, unclipped
	}
	if delta > -clip && delta < clip {
		return 0.5 * clippedErr * clippedErr, clippedErr
	}
	return 0.5 * clippedErr * clippedErr, 0
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
