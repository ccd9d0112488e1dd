package capture

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GocvSource reads from a gocv.VideoCapture.
//
// VideoCapture.Read blocks until the backend delivers a frame, so the timeout is
// not enforced here. An empty frame is reported as ErrTimeout.
type GocvSource struct {
	videoCapture *gocv.VideoCapture
}

func OpenGocv(cfg Config) (*GocvSource, error) {
	// NOTE: Opening a camera turns it on; its status LED should light up.
	videoCapture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open video capture source '%s'", cfg.Device)
	}
	if !videoCapture.IsOpened() {
		videoCapture.Close()
		return nil, errors.Errorf("video capture source '%s' did not open", cfg.Device)
	}

	if cfg.Width > 0 {
		videoCapture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		videoCapture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		videoCapture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}
	// Keep the driver queue short so the newest frame is the one we get.
	videoCapture.Set(gocv.VideoCaptureBufferSize, 1)

	return &GocvSource{videoCapture: videoCapture}, nil
}

func (s *GocvSource) Read(_ time.Duration) (gocv.Mat, error) {
	frame := gocv.NewMat()
	if ok := s.videoCapture.Read(&frame); !ok {
		frame.Close()
		return gocv.Mat{}, io.EOF
	}

	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, ErrTimeout
	}
	return frame, nil
}

func (s *GocvSource) Close() error {
	return errors.Wrap(s.videoCapture.Close(), "video capture source teardown error")
}
