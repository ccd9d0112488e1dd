// Package stage runs a named work loop with setup, step and teardown functions.
//
// A Loop is the building block of both pipeline stages: the capture loop and the
// processing loop. Setup runs synchronously in Start so that resource acquisition
// failures reach the caller before anything runs. The step function is called
// until the context is cancelled or it returns an error. Teardown runs on every
// exit path of the loop goroutine.
package stage

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
)

// ErrStop is returned by a step function to end its loop without an error.
var ErrStop = errors.New("stop requested")

type Loop struct {
	name     string
	setup    func() error
	teardown func() error
	step     func(context.Context) error

	startOnce sync.Once
	done      chan struct{}
	err       error
}

func New(name string) *Loop {
	return &Loop{
		name:     name,
		setup:    nil, // set by SetupFunc()
		teardown: nil, // set by TeardownFunc()
		step:     nil, // set by StepFunc()
		done:     make(chan struct{}),
	}
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) SetupFunc(setup func() error) {
	l.setup = setup
}

func (l *Loop) TeardownFunc(teardown func() error) {
	l.teardown = teardown
}

func (l *Loop) StepFunc(step func(context.Context) error) {
	l.step = step
}

// Start runs the setup function and then the loop in its own goroutine.
//
// A setup error is returned as is and the loop never starts; teardown is not
// called in that case, the setup function must clean up after itself.
func (l *Loop) Start(ctx context.Context) error {
	if l.step == nil {
		return errors.Errorf("stage %s has no step function", l.name)
	}

	started := false
	var err error
	l.startOnce.Do(func() {
		started = true
		if l.setup != nil {
			if err = l.setup(); err != nil {
				err = errors.Wrapf(err, "stage %s setup error", l.name)
				l.err = err
				close(l.done)
				return
			}
		}

		go l.loop(ctx)
	})
	if !started {
		return errors.Errorf("stage %s already started", l.name)
	}

	return err
}

// Done is closed once the loop goroutine has exited and teardown has run.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the error the loop ended with. It is only meaningful after Done.
func (l *Loop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Wait blocks until the loop has exited and returns its error.
func (l *Loop) Wait() error {
	<-l.done
	return l.err
}

func (l *Loop) loop(ctx context.Context) {
	var stepErr error

	defer func() {
		var teardownErr error
		if l.teardown != nil {
			teardownErr = errors.Wrapf(l.teardown(), "stage %s teardown error", l.name)
		}

		l.err = errutil.Flatten(stepErr, teardownErr)
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := l.step(ctx)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrStop) || errors.Is(err, context.Canceled) {
			return
		}

		stepErr = errors.Wrapf(err, "stage %s step error", l.name)
		return
	}
}
