package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"gocv.io/x/gocv"
)

const appSinkTail = "queue leaky=2 max-size-buffers=2 ! " +
	"appsink name=appsink sync=false drop=true max-buffers=1 emit-signals=false"

// GstLaunch builds the launch line for a camera element followed by a leaky
// queue and an appsink that keeps only the newest RGB frame.
func GstLaunch(cfg Config) (string, error) {
	if cfg.Pipeline != "" {
		return cfg.Pipeline, nil
	}

	w, h, fps := cfg.Width, cfg.Height, cfg.FPS
	if w <= 0 || h <= 0 || fps <= 0 {
		return "", errors.Errorf("invalid capture mode %dx%d@%d", w, h, fps)
	}

	var head string
	switch cfg.GstSource {
	case "qti":
		head = fmt.Sprintf("qtiqmmfsrc name=cam0 ! video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1", w, h, fps)
	case "v4l2", "":
		device := cfg.Device
		if device == "" {
			device = "/dev/video0"
		}
		head = fmt.Sprintf("v4l2src device=%s ! video/x-raw,format=YUY2,width=%d,height=%d,framerate=%d/1", device, w, h, fps)
	default:
		return "", errors.Errorf("unknown GStreamer source '%s'", cfg.GstSource)
	}

	return head + " ! videoconvert n-threads=2 ! video/x-raw,format=RGB ! " + appSinkTail, nil
}

// GstSource pulls RGB samples from an appsink and hands them out as BGR Mats.
type GstSource struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
}

func OpenGst(cfg Config) (*GstSource, error) {
	launch, err := GstLaunch(cfg)
	if err != nil {
		return nil, err
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create pipeline '%s'", launch)
	}

	elem, err := pipeline.GetElementByName("appsink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errors.Wrap(err, "appsink not found in pipeline")
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errors.Wrap(err, "failed to start pipeline")
	}

	return &GstSource{
		pipeline: pipeline,
		sink:     app.SinkFromElement(elem),
	}, nil
}

func (s *GstSource) Read(timeout time.Duration) (gocv.Mat, error) {
	sample := s.sink.TryPullSample(timeout)
	if sample == nil {
		if s.sink.IsEOS() {
			return gocv.Mat{}, io.EOF
		}
		return gocv.Mat{}, ErrTimeout
	}

	w, h, err := sampleSize(sample)
	if err != nil {
		return gocv.Mat{}, err
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gocv.Mat{}, ErrTimeout
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) < w*h*3 {
		buffer.Unmap()
		return gocv.Mat{}, errors.Errorf("sample has %d bytes, expected %d for %dx%d RGB", len(data), w*h*3, w, h)
	}

	// The wrapping Mat borrows the mapped memory; the conversion makes the copy.
	defer buffer.Unmap()
	rgb, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data[:w*h*3])
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to wrap sample")
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	if err := gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR); err != nil {
		bgr.Close()
		return gocv.Mat{}, errors.Wrap(err, "failed to convert sample to BGR")
	}
	return bgr, nil
}

func sampleSize(sample *gst.Sample) (int, int, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, errors.New("sample has no caps")
	}

	s := caps.GetStructureAt(0)
	wv, err := s.GetValue("width")
	if err != nil {
		return 0, 0, errors.Wrap(err, "sample caps have no width")
	}
	hv, err := s.GetValue("height")
	if err != nil {
		return 0, 0, errors.Wrap(err, "sample caps have no height")
	}

	w, wok := wv.(int)
	h, hok := hv.(int)
	if !wok || !hok || w <= 0 || h <= 0 {
		return 0, 0, errors.Errorf("invalid sample size %v x %v", wv, hv)
	}
	return w, h, nil
}

func (s *GstSource) Close() error {
	return errors.Wrap(s.pipeline.SetState(gst.StateNull), "pipeline teardown error")
}
