package tensor

import "math"

// Softmax converts scores to probabilities. The row maximum is subtracted
// before exponentiating so that large logits do not overflow.
func Softmax(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}

	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}

	out := make([]float32, len(scores))
	var sum float64
	for i, s := range scores {
		e := math.Exp(float64(s - top))
		out[i] = float32(e)
		sum += e
	}

	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// ArgMax returns the index and value of the largest element, or -1 for an empty slice.
func ArgMax(values []float32) (int, float32) {
	if len(values) == 0 {
		return -1, 0
	}

	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx, values[idx]
}
