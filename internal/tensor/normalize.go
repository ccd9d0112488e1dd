package tensor

import (
	"strings"

	"github.com/pkg/errors"
)

type NormMode int

const (
	// NormMean subtracts a per-channel mean from the raw 0-255 values.
	NormMean NormMode = iota

	// NormUnit scales the raw values into 0-1.
	NormUnit
)

func ParseNormMode(s string) (NormMode, error) {
	switch strings.ToLower(s) {
	case "mean", "caffe":
		return NormMean, nil
	case "unit", "01":
		return NormUnit, nil
	default:
		return 0, errors.Errorf("unknown normalization '%s'", s)
	}
}

// CaffeBGRMean is the channel mean of the VGG-Face training set in BGR order.
var CaffeBGRMean = []float32{91.4953, 103.8827, 131.0912}

type Norm struct {
	Mode NormMode
	Mean []float32
}

// Normalize converts interleaved 8-bit pixels (HWC) into float values laid out as l.
func Normalize(pix []byte, w, h, c int, n Norm, l Layout) ([]float32, error) {
	if w <= 0 || h <= 0 || c <= 0 {
		return nil, errors.Errorf("invalid image size %dx%dx%d", w, h, c)
	}
	if len(pix) != w*h*c {
		return nil, errors.Errorf("pixel buffer has %d bytes, expected %d", len(pix), w*h*c)
	}
	if n.Mode == NormMean && len(n.Mean) != c {
		return nil, errors.Errorf("mean has %d channels, image has %d", len(n.Mean), c)
	}

	out := make([]float32, len(pix))
	plane := w * h

	for i := 0; i < plane; i++ {
		for ch := 0; ch < c; ch++ {
			v := float32(pix[i*c+ch])
			if n.Mode == NormMean {
				v -= n.Mean[ch]
			} else {
				v /= 255
			}

			if l == NHWC {
				out[i*c+ch] = v
			} else {
				out[ch*plane+i] = v
			}
		}
	}

	return out, nil
}
