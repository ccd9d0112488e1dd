package sidefx

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
)

// ErrQueueFull is returned by Submit when the job could not be queued without waiting.
var ErrQueueFull = errors.New("side effect queue full")

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("side effect queue closed")

type Job func(ctx context.Context) error

// Queue runs jobs one at a time, in submission order, on a single worker goroutine.
type Queue struct {
	jobs   chan Job
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewQueue starts the worker. Jobs get a context that is cancelled by Close.
func NewQueue(size int, log logrus.FieldLogger) *Queue {
	if size < 1 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:    make(chan Job, size),
		log:     log.WithField("stage", "SIDEFX"),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	go q.work()
	return q
}

// Submit queues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	err := stage.NonBlockingSend(q.ctx, q.jobs, job)
	if errors.Is(err, stage.NotSent) {
		return ErrQueueFull
	}
	return err
}

// Close stops accepting jobs, runs the ones already queued and waits for the worker.
// Jobs still running when ctx is done are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	select {
	case <-q.stopped:
		q.cancel()
		return nil

	case <-ctx.Done():
		q.cancel()
		<-q.stopped
		return errors.Wrap(ctx.Err(), "side effect queue did not drain")
	}
}

func (q *Queue) work() {
	defer close(q.stopped)

	for job := range q.jobs {
		if err := job(q.ctx); err != nil {
			q.log.Warnf("side effect failed: %v", err)
		}
	}
}
