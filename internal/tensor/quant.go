package tensor

import "math"

// QuantParams map integer tensor values q to real values scale*(q-zeroPoint).
type QuantParams struct {
	Scale     float64
	ZeroPoint int32
}

// Sanitize replaces a zero scale with 1.0 so that quantizing never divides by zero.
// The boolean reports whether a substitution happened.
func (p QuantParams) Sanitize() (QuantParams, bool) {
	if p.Scale == 0 {
		p.Scale = 1.0
		return p, true
	}
	return p, false
}

// Quantize maps real values to round(v/scale + zeroPoint), clamped to the range of d.
func Quantize(values []float32, p QuantParams, d DType) []int32 {
	p, _ = p.Sanitize()
	lo, hi := d.Range()

	out := make([]int32, len(values))
	for i, v := range values {
		q := math.Round(float64(v)/p.Scale + float64(p.ZeroPoint))
		if q < float64(lo) {
			q = float64(lo)
		} else if q > float64(hi) {
			q = float64(hi)
		}
		out[i] = int32(q)
	}
	return out
}

// Dequantize maps integer values back to scale*(q - zeroPoint).
func Dequantize(values []int32, p QuantParams) []float32 {
	p, _ = p.Sanitize()

	out := make([]float32, len(values))
	for i, q := range values {
		out[i] = float32(p.Scale * float64(q-p.ZeroPoint))
	}
	return out
}
