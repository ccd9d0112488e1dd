// Package pipeline wires the capture stage and the processing stage together
// through a two-slot frame buffer.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/capture"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/detect"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/metrics"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/pingpong"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/sidefx"
)

// DefaultReadTimeout bounds each wait of the processing loop for a fresh frame.
const DefaultReadTimeout = 500 * time.Millisecond

type Config struct {
	Open        capture.Opener
	Rotation    capture.Rotation
	PullTimeout time.Duration

	// OpenDetector is called by the processing stage during its setup.
	OpenDetector   func() (detect.Detector, error)
	DetectInterval int
	Guard          region.Guard

	ReadTimeout time.Duration
	NominalFPS  float64

	// LogTimings logs the per-stage timings of every processed frame.
	LogTimings bool
}

// Pipeline runs one capture session. It is not reusable: call Run once.
type Pipeline struct {
	cfg        Config
	classifier *classify.Classifier
	sink       present.Sink
	overlay    *present.Overlay
	dispatcher *sidefx.Dispatcher
	collector  *metrics.Collector
	smoother   *metrics.Smoother
	log        logrus.FieldLogger
}

type Option func(*Pipeline)

func WithOverlay(o *present.Overlay) Option {
	return func(p *Pipeline) {
		p.overlay = o
	}
}

func WithDispatcher(d *sidefx.Dispatcher) Option {
	return func(p *Pipeline) {
		p.dispatcher = d
	}
}

func WithCollector(c *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.collector = c
	}
}

func WithSmoother(s *metrics.Smoother) Option {
	return func(p *Pipeline) {
		p.smoother = s
	}
}

// New takes ownership of classifier and sink; both are closed when Run ends.
// The classifier's model stays with the caller.
func New(cfg Config, classifier *classify.Classifier, sink present.Sink, log logrus.FieldLogger, opts ...Option) (*Pipeline, error) {
	if cfg.Open == nil {
		return nil, errors.New("no capture source configured")
	}
	if cfg.OpenDetector == nil {
		return nil, errors.New("no detector configured")
	}
	if classifier == nil {
		return nil, errors.New("no classifier configured")
	}
	if cfg.DetectInterval < 0 {
		return nil, errors.Errorf("detection interval must not be negative, got %d", cfg.DetectInterval)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if sink == nil {
		sink = present.Multi{}
	}

	p := &Pipeline{
		cfg:        cfg,
		classifier: classifier,
		sink:       sink,
		overlay:    present.NewOverlay(),
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.smoother == nil {
		p.smoother = metrics.NewSmoother(cfg.NominalFPS, metrics.DefaultAlpha, metrics.DefaultWarmupFrames)
	}

	return p, nil
}

// Run processes frames until ctx is done, the source ends or a stage fails.
//
// Shutdown is ordered: capture stops first so that no frame is written after
// processing has released its resources, then processing stops and finally
// the frames left in the buffer are freed.
func (p *Pipeline) Run(ctx context.Context) error {
	frames := pingpong.New[gocv.Mat](pingpong.WithRelease(func(m gocv.Mat) { m.Close() }))

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	capt := capture.NewStage(p.cfg.Open, p.cfg.Rotation, frames, p.cfg.PullTimeout, p.log)
	if err := capt.Start(captureCtx); err != nil {
		p.closeOwned()
		return err
	}

	processCtx, stopProcess := context.WithCancel(ctx)
	defer stopProcess()

	proc, err := newProcessor(p, frames)
	if err == nil {
		err = proc.loop.Start(processCtx)
	}
	if err != nil {
		stopCapture()
		_ = capt.Wait()
		frames.Drain()
		p.closeOwned()
		return err
	}

	p.log.Info("Pipeline running")

	select {
	case <-ctx.Done():
	case <-capt.Done():
	case <-proc.loop.Done():
	}

	stopCapture()
	captureErr := capt.Wait()

	stopProcess()
	processErr := proc.loop.Wait()

	frames.Drain()

	stats := frames.Stats()
	p.log.Infof("Pipeline stopped: %d captured, %d processed, %d dropped", stats.Written, stats.Read, stats.Dropped)

	return errutil.Flatten(captureErr, processErr)
}

// closeOwned releases what New took ownership of when processing never started.
func (p *Pipeline) closeOwned() {
	if err := errutil.Flatten(p.sink.Close(), p.classifier.Close()); err != nil {
		p.log.Warnf("Cleanup failed: %v", err)
	}
}
