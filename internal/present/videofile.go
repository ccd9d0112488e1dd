package present

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// VideoFile writes annotated frames to a video file.
//
// The writer opens lazily on the first frame, sized to that frame. When the
// file cannot be opened a warning is logged and the sink discards frames from
// then on instead of failing the pipeline.
type VideoFile struct {
	Path  string
	Codec string
	FPS   float64

	writer   *gocv.VideoWriter
	disabled bool
	log      logrus.FieldLogger
}

func NewVideoFile(path string, fps float64, log logrus.FieldLogger) *VideoFile {
	return &VideoFile{
		Path:  path,
		Codec: "mp4v",
		FPS:   fps,
		log:   log.WithField("stage", "VIDEOFILE"),
	}
}

func (v *VideoFile) Put(frame gocv.Mat, _ Annotation) error {
	if v.disabled || frame.Empty() {
		return nil
	}

	if v.writer == nil {
		w, err := gocv.VideoWriterFile(v.Path, v.Codec, v.FPS, frame.Cols(), frame.Rows(), true)
		if err != nil || !w.IsOpened() {
			v.log.Warnf("Could not open video writer for %q, recording disabled", v.Path)
			if w != nil {
				_ = w.Close()
			}
			v.disabled = true
			return nil
		}
		v.log.Infof("Recording %dx%d @ %.1f fps to %s", frame.Cols(), frame.Rows(), v.FPS, v.Path)
		v.writer = w
	}

	return errors.Wrap(v.writer.Write(frame), "failed to write video frame")
}

func (v *VideoFile) Disabled() bool {
	return v.disabled
}

func (v *VideoFile) Close() error {
	if v.writer == nil {
		return nil
	}
	err := v.writer.Close()
	v.writer = nil
	return errors.Wrap(err, "failed to close video writer")
}
