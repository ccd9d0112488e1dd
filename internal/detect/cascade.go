package detect

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

// Cascade is a Haar cascade face detector. It reports every box with confidence 1.
type Cascade struct {
	classifier gocv.CascadeClassifier
	gray       gocv.Mat
	minSide    int
}

func NewCascade(classifierFile string, minSide int) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if ok := classifier.Load(classifierFile); !ok {
		classifier.Close()
		return nil, errors.Errorf("Failed to load classifier file '%s'", classifierFile)
	}

	return &Cascade{
		classifier: classifier,
		gray:       gocv.NewMat(),
		minSide:    minSide,
	}, nil
}

func (c *Cascade) Detect(frame gocv.Mat) ([]region.Region, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	if err := gocv.CvtColor(frame, &c.gray, gocv.ColorBGRToGray); err != nil {
		return nil, errors.Wrap(err, "failed to convert frame to grayscale")
	}

	minSize := image.Pt(c.minSide, c.minSide)
	rects := c.classifier.DetectMultiScaleWithParams(c.gray, 1.1, 4, 0, minSize, image.Pt(0, 0))

	regions := make([]region.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, region.Region{Box: r, Confidence: 1})
	}
	return regions, nil
}

func (c *Cascade) Close() error {
	return errutil.Flatten(
		errors.Wrap(c.classifier.Close(), "cascade classifier teardown error"),
		errors.Wrap(c.gray.Close(), "cascade gray buffer teardown error"),
	)
}
