package capture

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/pingpong"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
)

// DefaultPullTimeout bounds each wait for a frame so that a stop request is seen promptly.
const DefaultPullTimeout = time.Second

// Stage pulls frames at sensor cadence, rotates them and writes them into the
// frame buffer. It never waits for the consumer.
type Stage struct {
	loop *stage.Loop

	captured atomic.Uint64
	timeouts atomic.Uint64
}

func NewStage(open Opener, rotation Rotation, frames *pingpong.Buffer[gocv.Mat], pullTimeout time.Duration, log logrus.FieldLogger) *Stage {
	if pullTimeout <= 0 {
		pullTimeout = DefaultPullTimeout
	}

	s := &Stage{loop: stage.New("CAPTURE")}
	log = log.WithField("stage", s.loop.Name())

	var source Source

	s.loop.SetupFunc(func() error {
		var err error
		if source, err = open(); err != nil {
			return errors.Wrap(err, "failed to open capture source")
		}
		log.Infof("Capture source opened, rotation %d", int(rotation))
		return nil
	})

	s.loop.TeardownFunc(func() error {
		log.Infof("Closing capture source after %d frames", s.captured.Load())
		return source.Close()
	})

	s.loop.StepFunc(func(ctx context.Context) error {
		frame, err := source.Read(pullTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrTimeout):
			s.timeouts.Add(1)
			log.Debug("No frame within pull timeout")
			return nil
		case errors.Is(err, io.EOF):
			log.Info("End of capture stream")
			return stage.ErrStop
		default:
			return errors.Wrap(err, "failed to read frame")
		}

		if frame, err = rotation.Apply(frame); err != nil {
			log.Warnf("Dropping frame: %v", err)
			return nil
		}

		frames.Write(frame)
		s.captured.Add(1)
		return nil
	})

	return s
}

// Start opens the source; an open failure is returned and nothing runs.
func (s *Stage) Start(ctx context.Context) error {
	return s.loop.Start(ctx)
}

func (s *Stage) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Stage) Wait() error {
	return s.loop.Wait()
}

func (s *Stage) Captured() uint64 {
	return s.captured.Load()
}

func (s *Stage) Timeouts() uint64 {
	return s.timeouts.Load()
}
