// Package tensor describes model input and output tensors and the numeric
// conversions at the model boundary: normalization, quantization and softmax.
package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type DType int

const (
	Float32 DType = iota
	Int8
	Uint8
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Quantized reports whether values of this type carry quantization parameters.
func (d DType) Quantized() bool {
	return d == Int8 || d == Uint8
}

// Range is the closed interval of integer values representable by d.
func (d DType) Range() (lo, hi int32) {
	switch d {
	case Int8:
		return -128, 127
	case Uint8:
		return 0, 255
	default:
		return 0, 0
	}
}

func ParseDType(s string) (DType, error) {
	switch strings.ToLower(s) {
	case "float32", "f32", "float":
		return Float32, nil
	case "int8", "i8":
		return Int8, nil
	case "uint8", "u8":
		return Uint8, nil
	default:
		return 0, errors.Errorf("unknown tensor dtype '%s'", s)
	}
}

type Layout int

const (
	NCHW Layout = iota
	NHWC
)

func (l Layout) String() string {
	if l == NHWC {
		return "NHWC"
	}
	return "NCHW"
}

// Info declares the shape and encoding of a tensor.
type Info struct {
	Shape  []int
	DType  DType
	Layout Layout
	Quant  QuantParams
}

// Elements is the product of the shape dimensions.
func (i Info) Elements() int {
	if len(i.Shape) == 0 {
		return 0
	}

	n := 1
	for _, d := range i.Shape {
		n *= d
	}
	return n
}

// ImageSize returns width, height and channels of a 4D image tensor.
func (i Info) ImageSize() (w, h, c int, err error) {
	if len(i.Shape) != 4 {
		return 0, 0, 0, errors.Errorf("expected a 4D image tensor, got shape %v", i.Shape)
	}

	if i.Layout == NHWC {
		return i.Shape[2], i.Shape[1], i.Shape[3], nil
	}
	return i.Shape[3], i.Shape[2], i.Shape[1], nil
}

// Tensor holds float data in F32 or quantized integer data in Q, as its Info says.
type Tensor struct {
	Info
	F32 []float32
	Q   []int32
}

// Floats returns the real values of t, dequantizing integer data.
func (t Tensor) Floats() []float32 {
	if !t.DType.Quantized() {
		return t.F32
	}
	return Dequantize(t.Q, t.Quant)
}
