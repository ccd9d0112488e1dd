package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/capture"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/detect"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/metrics"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/pipeline"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/sidefx"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stream"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

const (
	sideEffectQueueSize = 16
	sideEffectDrainWait = 5 * time.Second
)

// session holds what one run of the run or gui command owns, built from Options.
type session struct {
	opts *Options

	model      *classify.DNNModel
	capability classify.Capability
	labels     []string

	db        *store.Store
	record    store.Session
	queue     *sidefx.Queue
	actions   []sidefx.Action
	registry  *prometheus.Registry
	collector *metrics.Collector
	hub       *stream.Hub
}

func newSession(ctx context.Context, opts *Options) (*session, error) {
	s := &session{opts: opts}
	if err := s.open(ctx); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			logger.Warnf("Cleanup after failed start: %v", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *session) open(ctx context.Context) error {
	opts := s.opts

	var err error
	if opts.LabelsFile != "" {
		if s.labels, err = classify.LoadLabels(opts.LabelsFile); err != nil {
			return err
		}
	}

	s.model, s.capability, err = classify.OpenDNN(classify.DNNConfig{
		Model:    opts.Model,
		Config:   opts.ModelConfig,
		Width:    opts.InputWidth,
		Height:   opts.InputHeight,
		Channels: opts.InputChannels,
		Backend:  opts.DNNBackend,
		Target:   opts.DNNTarget,
	}, logger)
	if err != nil {
		return err
	}
	logger.Infof("Classifier running on %s", s.capability)

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector())
	s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if s.collector, err = metrics.NewCollector(s.registry); err != nil {
		return err
	}

	if opts.Database != "" {
		if s.db, err = store.Open(opts.Database); err != nil {
			return err
		}
		s.record, err = s.db.StartSession(ctx, store.Session{
			Source:  opts.captureConfig().Describe(),
			Model:   opts.Model,
			Backend: s.capability.String(),
		})
		if err != nil {
			return err
		}
		logger.Infof("Recording events of session %s to %s", s.record.ID, opts.Database)
	}

	if err = s.buildActions(); err != nil {
		return err
	}

	if opts.Listen != "" {
		s.hub = stream.NewHub(logger)
	}

	return nil
}

// buildActions collects the side actions in the order they run for an event:
// the snapshot first so that the recorded event can point at it.
func (s *session) buildActions() error {
	if s.opts.SnapshotDir != "" {
		snap, err := sidefx.NewSnapshot(s.opts.SnapshotDir)
		if err != nil {
			return err
		}
		s.actions = append(s.actions, snap)
	}

	if s.db != nil {
		s.actions = append(s.actions, &sidefx.Recorder{Store: s.db, SessionID: s.record.ID})
	}

	if strings.TrimSpace(s.opts.TTSCommand) != "" {
		s.actions = append(s.actions, &sidefx.Announcer{Command: s.opts.TTSCommand})
	}

	if len(s.actions) > 0 {
		s.queue = sidefx.NewQueue(sideEffectQueueSize, logger)
	}
	return nil
}

func (s *session) nominalFPS() float64 {
	if s.opts.FPS > 0 {
		return float64(s.opts.FPS)
	}
	return 30
}

// sinks returns the outputs every command shares: the video file and the live stream.
func (s *session) sinks() []present.Sink {
	var sinks []present.Sink
	if s.opts.OutputPath != "" {
		sinks = append(sinks, present.NewVideoFile(s.opts.OutputPath, s.nominalFPS(), logger))
	}
	if s.hub != nil {
		sinks = append(sinks, present.NewHubSink(s.hub, s.opts.StreamFPS))
	}
	return sinks
}

func (s *session) pipeline(sinks ...present.Sink) (*pipeline.Pipeline, error) {
	opener, err := capture.NewOpener(s.opts.captureConfig())
	if err != nil {
		return nil, err
	}

	norm := tensor.Norm{Mode: s.opts.norm}
	classifier, err := classify.New(s.model, classify.Config{
		Labels:    s.labels,
		Norm:      norm,
		CropScale: s.opts.CropScale,
	}, logger)
	if err != nil {
		return nil, err
	}

	detectCfg := s.opts.detectConfig()
	cfg := pipeline.Config{
		Open:        opener,
		Rotation:    s.opts.rotation,
		PullTimeout: capture.DefaultPullTimeout,

		OpenDetector:   func() (detect.Detector, error) { return detect.Open(detectCfg) },
		DetectInterval: s.opts.DetectInterval,
		Guard:          s.opts.guard(),

		NominalFPS: s.nominalFPS(),
		LogTimings: s.opts.LogTimings,
	}

	overlay := present.NewOverlay()
	overlay.BlurRegions = s.opts.BlurRegions

	opts := []pipeline.Option{
		pipeline.WithOverlay(overlay),
		pipeline.WithCollector(s.collector),
	}
	if s.queue != nil {
		cooldown := sidefx.NewCooldown(s.opts.Cooldown)
		opts = append(opts, pipeline.WithDispatcher(sidefx.NewDispatcher(cooldown, s.queue, logger, s.actions...)))
	}

	p, err := pipeline.New(cfg, classifier, present.Multi(sinks), logger, opts...)
	if err != nil {
		_ = classifier.Close()
		return nil, err
	}
	return p, nil
}

// serve runs the websocket hub and the HTTP server in g until ctx is done.
func (s *session) serve(ctx context.Context, g *errgroup.Group) {
	if s.hub == nil {
		return
	}

	var events stream.EventLister
	if s.db != nil {
		events = s.db
	}
	srv := stream.NewServer(s.hub, s.registry, events, logger)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, s.opts.Listen)
	})
}

// Close waits for queued side effects, then releases the store and the model.
func (s *session) Close() error {
	var errs []error

	if s.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectDrainWait)
		errs = append(errs, errors.Wrap(s.queue.Close(ctx), "side effects did not finish"))
		cancel()
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.model != nil {
		errs = append(errs, s.model.Close())
	}

	return errutil.Flatten(errs...)
}
