package capture

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Rotation is a clockwise rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

func ParseRotation(deg int) (Rotation, error) {
	switch Rotation(deg) {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return Rotation(deg), nil
	default:
		return 0, errors.Errorf("rotation must be 0, 90, 180 or 270, got %d", deg)
	}
}

// Apply returns the rotated frame. The input is consumed: it is either
// returned as is or closed.
func (r Rotation) Apply(frame gocv.Mat) (gocv.Mat, error) {
	var code gocv.RotateFlag
	switch r {
	case Rotate0:
		return frame, nil
	case Rotate90:
		code = gocv.Rotate90Clockwise
	case Rotate180:
		code = gocv.Rotate180Clockwise
	case Rotate270:
		code = gocv.Rotate90CounterClockwise
	default:
		frame.Close()
		return gocv.Mat{}, errors.Errorf("invalid rotation %d", int(r))
	}

	rotated := gocv.NewMat()
	gocv.Rotate(frame, &rotated, code)
	frame.Close()

	if rotated.Empty() {
		rotated.Close()
		return gocv.Mat{}, errors.New("rotation produced an empty frame")
	}
	return rotated, nil
}
