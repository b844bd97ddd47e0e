package vision

import "math"

// Argmax returns the index and value of the largest score. Ties keep the
// earliest index. An empty slice yields -1.
func Argmax(scores []float32) (int, float32) {
	if len(scores) == 0 {
		return -1, 0
	}
	maxIdx, maxVal := 0, scores[0]
	for i, v := range scores[1:] {
		if v > maxVal {
			maxIdx, maxVal = i+1, v
		}
	}
	return maxIdx, maxVal
}

// Softmax converts logits into probabilities in place.
func Softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	_, peak := Argmax(logits)
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - peak))
		logits[i] = float32(e)
		sum += e
	}
	for i := range logits {
		logits[i] = float32(float64(logits[i]) / sum)
	}
}

// Clamp01 bounds a probability to [0, 1]; NaN becomes 0.
func Clamp01(v float32) float64 {
	f := float64(v)
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
