package detect

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

// Scaled runs Inner on a downscaled copy of the frame and maps the boxes back.
type Scaled struct {
	Inner  Detector
	Factor float64

	small gocv.Mat
}

func NewScaled(inner Detector, factor float64) *Scaled {
	return &Scaled{
		Inner:  inner,
		Factor: factor,
		small:  gocv.NewMat(),
	}
}

func (s *Scaled) Detect(frame gocv.Mat) ([]region.Region, error) {
	full := image.Pt(frame.Cols(), frame.Rows())
	size := region.DownscaledSize(full, s.Factor)
	if size == full {
		return s.Inner.Detect(frame)
	}

	gocv.Resize(frame, &s.small, size, 0, 0, gocv.InterpolationLinear)
	if s.small.Empty() {
		return nil, errors.New("failed to downscale frame")
	}

	regions, err := s.Inner.Detect(s.small)
	if err != nil {
		return nil, err
	}
	return region.Rescale(regions, size, full), nil
}

func (s *Scaled) Close() error {
	return errutil.Flatten(
		s.Inner.Close(),
		errors.Wrap(s.small.Close(), "downscale buffer teardown error"),
	)
}
