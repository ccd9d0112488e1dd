package present

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
)

// Sink receives every annotated frame. The frame stays owned by the caller and
// is only valid for the duration of Put.
type Sink interface {
	Put(frame gocv.Mat, ann Annotation) error
	Close() error
}

// Multi forwards every frame to each sink in order. A failing sink does not
// keep the frame from the sinks after it. When any sink asks for a stop,
// Put returns stage.ErrStop; otherwise the sink errors are combined.
type Multi []Sink

func (m Multi) Put(frame gocv.Mat, ann Annotation) error {
	var (
		errs []error
		stop bool
	)
	for _, s := range m {
		err := s.Put(frame, ann)
		switch {
		case err == nil:
		case errors.Is(err, stage.ErrStop):
			stop = true
		default:
			errs = append(errs, err)
		}
	}

	if stop {
		return stage.ErrStop
	}
	return errutil.Flatten(errs...)
}

func (m Multi) Close() error {
	errs := make([]error, 0, len(m))
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errutil.Flatten(errs...)
}
