// Package capture pulls frames from a camera, file or GStreamer pipeline and
// publishes them into the frame buffer shared with the processing stage.
package capture

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrTimeout is returned by Source.Read when no frame arrived within the wait.
var ErrTimeout = errors.New("no frame within timeout")

// Source produces BGR frames. Read returns a Mat owned by the caller, ErrTimeout
// when nothing arrived in time and io.EOF at the end of the stream.
type Source interface {
	Read(timeout time.Duration) (gocv.Mat, error)
	Close() error
}

// Opener acquires the source; it runs in the setup of the capture stage.
type Opener func() (Source, error)

type Backend string

const (
	BackendGocv Backend = "gocv"
	BackendGst  Backend = "gst"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(s)) {
	case BackendGocv:
		return BackendGocv, nil
	case BackendGst:
		return BackendGst, nil
	default:
		return "", errors.Errorf("unknown capture backend '%s'", s)
	}
}

type Config struct {
	Backend Backend

	// Device is a camera index, a device node, a file or a URL for gocv and
	// the device node for the v4l2 GStreamer source.
	Device string

	// GstSource selects the GStreamer camera element: "qti" or "v4l2".
	GstSource string

	// Pipeline overrides the generated GStreamer launch line. It must end in an
	// appsink named "appsink" producing RGB.
	Pipeline string

	Width  int
	Height int
	FPS    int
}

func (c Config) Describe() string {
	if c.Backend == BackendGst {
		return "gst:" + c.GstSource + ":" + c.Device
	}
	return "gocv:" + c.Device
}

// NewOpener returns the Opener for cfg. Nothing is opened until it is called.
func NewOpener(cfg Config) (Opener, error) {
	switch cfg.Backend {
	case BackendGocv:
		return func() (Source, error) { return OpenGocv(cfg) }, nil
	case BackendGst:
		return func() (Source, error) { return OpenGst(cfg) }, nil
	default:
		return nil, errors.Errorf("unknown capture backend '%s'", cfg.Backend)
	}
}
