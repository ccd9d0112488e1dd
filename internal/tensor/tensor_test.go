package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeRoundTrip(t *testing.T) {
	p := QuantParams{Scale: 0.05, ZeroPoint: -3}

	values := []float32{-6.2, -1, -0.03, 0, 0.024, 0.5, 1.337, 6.2}
	for _, d := range []DType{Int8, Uint8} {
		lo, hi := d.Range()
		minReal := p.Scale * float64(lo-p.ZeroPoint)
		maxReal := p.Scale * float64(hi-p.ZeroPoint)

		back := Dequantize(Quantize(values, p, d), p)
		for i, v := range values {
			if float64(v) < minReal || float64(v) > maxReal {
				continue
			}
			assert.InDelta(t, v, back[i], p.Scale, "dtype %s value %v", d, v)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	p := QuantParams{Scale: 0.1, ZeroPoint: 0}

	assert.Equal(t, []int32{-128, 127}, Quantize([]float32{-1000, 1000}, p, Int8))
	assert.Equal(t, []int32{0, 255}, Quantize([]float32{-1000, 1000}, p, Uint8))
}

func TestQuantizeRounds(t *testing.T) {
	p := QuantParams{Scale: 0.5, ZeroPoint: 10}
	assert.Equal(t, []int32{10, 11, 12, 8}, Quantize([]float32{0, 0.3, 1, -0.9}, p, Int8))
}

func TestZeroScaleIsSubstituted(t *testing.T) {
	p, replaced := QuantParams{Scale: 0, ZeroPoint: 2}.Sanitize()
	assert.True(t, replaced)
	assert.Equal(t, 1.0, p.Scale)

	_, replaced = QuantParams{Scale: 0.5}.Sanitize()
	assert.False(t, replaced)

	assert.Equal(t, []int32{5}, Quantize([]float32{3}, QuantParams{ZeroPoint: 2}, Int8))
	assert.Equal(t, []float32{1}, Dequantize([]int32{3}, QuantParams{ZeroPoint: 2}))
}

func TestSoftmaxIsStable(t *testing.T) {
	probs := Softmax([]float32{1000, 1001, 1002})
	require.Len(t, probs, 3)

	var sum float32
	for _, p := range probs {
		assert.False(t, math.IsNaN(float64(p)))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.InDelta(t, 0.6652, probs[2], 1e-3)

	assert.Nil(t, Softmax(nil))
}

func TestArgMax(t *testing.T) {
	idx, v := ArgMax([]float32{0.1, 0.7, 0.2})
	assert.Equal(t, 1, idx)
	assert.Equal(t, float32(0.7), v)

	idx, _ = ArgMax(nil)
	assert.Equal(t, -1, idx)
}

func TestTensorFloats(t *testing.T) {
	q := Tensor{
		Info: Info{Shape: []int{1, 2}, DType: Uint8, Quant: QuantParams{Scale: 0.5, ZeroPoint: 128}},
		Q:    []int32{128, 130},
	}
	assert.Equal(t, []float32{0, 1}, q.Floats())

	f := Tensor{Info: Info{DType: Float32}, F32: []float32{0.25}}
	assert.Equal(t, []float32{0.25}, f.Floats())
}

func TestNormalizeMeanNCHW(t *testing.T) {
	// 2x1 image, BGR.
	pix := []byte{100, 110, 140, 0, 0, 0}
	out, err := Normalize(pix, 2, 1, 3, Norm{Mode: NormMean, Mean: []float32{100, 100, 100}}, NCHW)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, -100, 10, -100, 40, -100}, out)
}

func TestNormalizeUnitNHWC(t *testing.T) {
	pix := []byte{0, 255, 51}
	out, err := Normalize(pix, 1, 1, 3, Norm{Mode: NormUnit}, NHWC)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float32{0, 1, 0.2}, out, 1e-6)
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize([]byte{1, 2}, 1, 1, 3, Norm{Mode: NormUnit}, NHWC)
	assert.Error(t, err)

	_, err = Normalize([]byte{1, 2, 3}, 1, 1, 3, Norm{Mode: NormMean, Mean: []float32{1}}, NHWC)
	assert.Error(t, err)

	_, err = Normalize(nil, 0, 1, 3, Norm{}, NHWC)
	assert.Error(t, err)
}

func TestInfoImageSize(t *testing.T) {
	w, h, c, err := Info{Shape: []int{1, 3, 224, 200}, Layout: NCHW}.ImageSize()
	require.NoError(t, err)
	assert.Equal(t, []int{200, 224, 3}, []int{w, h, c})

	w, h, c, err = Info{Shape: []int{1, 64, 48, 1}, Layout: NHWC}.ImageSize()
	require.NoError(t, err)
	assert.Equal(t, []int{48, 64, 1}, []int{w, h, c})

	_, _, _, err = Info{Shape: []int{7}}.ImageSize()
	assert.Error(t, err)

	assert.Equal(t, 1*3*224*200, Info{Shape: []int{1, 3, 224, 200}}.Elements())
}

func TestParse(t *testing.T) {
	d, err := ParseDType("INT8")
	require.NoError(t, err)
	assert.Equal(t, Int8, d)

	_, err = ParseDType("bf16")
	assert.Error(t, err)

	m, err := ParseNormMode("unit")
	require.NoError(t, err)
	assert.Equal(t, NormUnit, m)
}
