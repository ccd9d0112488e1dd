package main

import (
	"context"
	"fmt"
	"path"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
)

// viewer is the sink behind the GUI: it shows annotated frames in a canvas
// image and the current results in a label.
type viewer struct {
	container  *fyne.Container
	viewObjIdx int

	enabled binding.Bool
	results binding.String

	viewImg *canvas.Image
}

var _ present.Sink = &viewer{}

func newViewer(container *fyne.Container, viewObjIdx int) *viewer {
	v := &viewer{
		container:  container,
		viewObjIdx: viewObjIdx,
		enabled:    binding.NewBool(),
		results:    binding.NewString(),
	}
	_ = v.enabled.Set(true)
	_ = v.results.Set("Waiting for frames...")
	return v
}

func (v *viewer) Put(frame gocv.Mat, ann present.Annotation) error {
	_ = v.results.Set(resultsText(ann))

	if on, _ := v.enabled.Get(); !on || frame.Empty() {
		return nil
	}

	img, err := frame.ToImage()
	if err != nil {
		return errors.Wrap(err, "failed to convert frame")
	}

	if v.viewImg != nil {
		v.viewImg.Image = img
	} else {
		imgBounds := img.Bounds()
		imgSize := fyne.NewSize(float32(imgBounds.Dx()), float32(imgBounds.Dy()))
		v.viewImg = canvas.NewImageFromImage(img)
		v.viewImg.SetMinSize(imgSize)
		v.viewImg.FillMode = canvas.ImageFillOriginal
		v.container.Objects[v.viewObjIdx] = v.viewImg
	}

	v.container.Refresh()
	return nil
}

func (v *viewer) Close() error {
	return nil
}

func (v *viewer) settingsContainer(opts *Options) *fyne.Container {
	return container.New(layout.NewVBoxLayout(),
		widget.NewLabel("Source:"),
		widget.NewLabel(opts.captureConfig().Describe()),
		widget.NewLabel("Model:"),
		widget.NewLabel(path.Base(opts.Model)),
		widget.NewLabel("Detector:"),
		widget.NewLabel(opts.DetectorBackend),
		widget.NewSeparator(),
		widget.NewCheckWithData("Preview", v.enabled),
		widget.NewLabelWithData(v.results),
	)
}

// resultsText lists the results of a frame, one per line, under the frame rate.
func resultsText(ann present.Annotation) string {
	lines := []string{fmt.Sprintf("FPS: %.1f", ann.FPS)}
	if len(ann.Results) == 0 {
		lines = append(lines, "No faces")
	}
	for _, r := range ann.Results {
		lines = append(lines, present.Label(r))
	}
	return strings.Join(lines, "\n")
}

func guiMain(parentCtx context.Context, opts *Options) error {
	s, err := newSession(parentCtx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Error("Shutdown failed.")
		}
	}()

	// Create app.

	emotioncam := app.NewWithID("emotioncam")
	emotioncam.SetIcon(theme.MediaVideoIcon())

	// Create app window.

	window := emotioncam.NewWindow("EmotionCam")
	window.SetFixedSize(true)
	window.SetMaster()

	// Create GUI components.

	placeholder := canvas.NewImageFromResource(theme.MediaVideoIcon())
	placeholder.SetMinSize(fyne.NewSize(float32(opts.Width), float32(opts.Height)))
	viewContainer := container.NewMax(placeholder)
	view := newViewer(viewContainer, 0)

	p, err := s.pipeline(append(s.sinks(), view)...)
	if err != nil {
		return err
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.MediaStopIcon(), window.Close),
		widget.NewToolbarSeparator(),
		widget.NewToolbarSpacer(),
	)

	mainView := container.New(layout.NewHBoxLayout(),
		view.settingsContainer(opts),
		viewContainer,
	)

	// Populate window.
	window.SetContent(container.New(layout.NewVBoxLayout(),
		toolbar,
		mainView,
	))

	// Run background loop.
	ctx, cancelCtx := context.WithCancel(parentCtx)
	defer cancelCtx()

	g, gctx := errgroup.WithContext(ctx)
	s.serve(gctx, g)
	g.Go(func() error {
		defer cancelCtx()
		return p.Run(gctx)
	})

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- g.Wait()
		window.Close()
	}()

	// Start GUI.
	logger.Infof("Starting GUI application.")
	window.ShowAndRun()
	cancelCtx()
	logger.Tracef("GUI application stopped.")

	// Shutdown.
	logger.Tracef("Waiting for the pipeline to stop...")
	err = <-pipelineErr
	if err != nil {
		logger.WithError(err).Error("Pipeline run failed.")
	}

	logger.Infof("Shutdown complete.")
	return err
}
