package detect

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

// Fallback runs Secondary only when Primary fails or finds no region that passes Guard.
type Fallback struct {
	Primary   Detector
	Secondary Detector
	Guard     region.Guard
}

func (f *Fallback) Detect(frame gocv.Mat) ([]region.Region, error) {
	regions, primaryErr := f.Primary.Detect(frame)
	if primaryErr == nil && f.anyValid(regions, image.Rect(0, 0, frame.Cols(), frame.Rows())) {
		return regions, nil
	}

	secondary, err := f.Secondary.Detect(frame)
	if err != nil {
		return nil, errutil.Flatten(primaryErr, errors.Wrap(err, "fallback detector failed"))
	}
	return secondary, nil
}

func (f *Fallback) anyValid(regions []region.Region, bounds image.Rectangle) bool {
	for _, r := range regions {
		if f.Guard.Valid(region.Clamp(r.Box, bounds), bounds) {
			return true
		}
	}
	return false
}

func (f *Fallback) Close() error {
	return errutil.Flatten(f.Primary.Close(), f.Secondary.Close())
}
