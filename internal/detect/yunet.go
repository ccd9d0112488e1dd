package detect

import (
	"image"
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

type YuNetConfig struct {
	Model          string
	ScoreThreshold float32
	NMSThreshold   float32
	TopK           int
}

// YuNet wraps the OpenCV FaceDetectorYN face detector.
type YuNet struct {
	detector  gocv.FaceDetectorYN
	faces     gocv.Mat
	inputSize image.Point
}

func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, errors.Wrapf(err, "YuNet model '%s' not found", cfg.Model)
	}

	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.6
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = 0.3
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5000
	}

	// The input size is set again for every frame size seen.
	size := image.Pt(320, 320)
	return &YuNet{
		detector: gocv.NewFaceDetectorYNWithParams(
			cfg.Model, "", size,
			cfg.ScoreThreshold, cfg.NMSThreshold, cfg.TopK,
			int(gocv.NetBackendDefault), int(gocv.NetTargetCPU),
		),
		faces:     gocv.NewMat(),
		inputSize: size,
	}, nil
}

func (y *YuNet) Detect(frame gocv.Mat) ([]region.Region, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	size := image.Pt(frame.Cols(), frame.Rows())
	if size != y.inputSize {
		y.detector.SetInputSize(size)
		y.inputSize = size
	}

	y.detector.Detect(frame, &y.faces)

	// Rows of 15 floats: x, y, w, h, five landmark points, score.
	regions := make([]region.Region, 0, y.faces.Rows())
	for r := 0; r < y.faces.Rows(); r++ {
		x := y.faces.GetFloatAt(r, 0)
		top := y.faces.GetFloatAt(r, 1)
		w := y.faces.GetFloatAt(r, 2)
		h := y.faces.GetFloatAt(r, 3)

		regions = append(regions, region.Region{
			Box:        image.Rect(int(x), int(top), int(x+w), int(top+h)),
			Confidence: y.faces.GetFloatAt(r, 14),
		})
	}

	return regions, nil
}

func (y *YuNet) Close() error {
	y.detector.Close()
	return errors.Wrap(y.faces.Close(), "YuNet result buffer teardown error")
}
