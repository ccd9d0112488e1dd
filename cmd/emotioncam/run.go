package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
)

func runMain(parentCtx context.Context, opts *Options) error {
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Error("Shutdown failed.")
		}
	}()

	sinks := s.sinks()
	if strings.EqualFold(opts.Show, "cv") {
		sinks = append(sinks, present.NewWindow("emotioncam"))
	}

	p, err := s.pipeline(sinks...)
	if err != nil {
		return err
	}

	// The pipeline ending for any reason stops the HTTP side as well.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	s.serve(gctx, g)
	g.Go(func() error {
		defer cancel()
		return p.Run(gctx)
	})

	logger.Infof("Processing %s", opts.captureConfig().Describe())
	err = g.Wait()
	logger.Infof("Shutdown complete.")
	return err
}
