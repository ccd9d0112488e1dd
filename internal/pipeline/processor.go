package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/cadence"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/detect"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/errutil"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/metrics"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/pingpong"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/sidefx"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
)

// processor is the consumer side: detect, classify, act, draw, emit.
type processor struct {
	*Pipeline

	loop     *stage.Loop
	frames   *pingpong.Buffer[gocv.Mat]
	cadence  *cadence.Controller
	detector detect.Detector
	index    int
	log      logrus.FieldLogger
}

func newProcessor(p *Pipeline, frames *pingpong.Buffer[gocv.Mat]) (*processor, error) {
	ctrl, err := cadence.New(p.cfg.DetectInterval, p.cfg.Guard)
	if err != nil {
		return nil, err
	}

	proc := &processor{
		Pipeline: p,
		loop:     stage.New("PROCESS"),
		frames:   frames,
		cadence:  ctrl,
	}
	proc.log = p.log.WithField("stage", proc.loop.Name())

	proc.loop.SetupFunc(func() error {
		d, err := p.cfg.OpenDetector()
		if err != nil {
			return errors.Wrap(err, "failed to open detector")
		}
		proc.detector = d

		every := p.cfg.DetectInterval
		if every == 0 {
			every = 1
		}
		proc.log.Infof("Detecting every %d frame(s)", every)
		return nil
	})

	proc.loop.TeardownFunc(func() error {
		proc.log.Infof("Stopping after %d frames", proc.index)
		return errutil.Flatten(
			proc.detector.Close(),
			p.sink.Close(),
			p.classifier.Close(),
		)
	})

	proc.loop.StepFunc(proc.step)

	return proc, nil
}

func (proc *processor) step(ctx context.Context) error {
	item, ok := proc.frames.ReadLatest(ctx, proc.cfg.ReadTimeout)
	if !ok {
		return nil
	}

	frame := item.Value
	defer frame.Close()

	var t metrics.Timings
	start := time.Now()

	index := proc.index
	proc.index++

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	decision := proc.cadence.Step(cadence.Frame{Index: index, Seq: item.Seq, Bounds: bounds}, func() ([]region.Region, error) {
		return proc.detector.Detect(frame)
	})
	if decision.Err != nil {
		proc.log.Warnf("Detection failed, keeping previous regions: %v", decision.Err)
	}
	t.Detect = time.Since(start)

	batch := proc.classifier.Classify(frame, decision.Regions)
	total := batch.Total()
	t.Preprocess, t.Inference, t.Postprocess = total.Preprocess, total.Inference, total.Postprocess

	proc.dispatch(frame, item, batch.Results)

	fps := proc.smoother.Tick()
	ann := present.Annotation{
		Seq:     item.Seq,
		Time:    item.Time,
		Results: batch.Results,
		Latency: batch.MaxInference(),
		FPS:     fps,
	}

	drawStart := time.Now()
	if err := proc.overlay.Draw(&frame, ann); err != nil {
		proc.log.Warnf("Drawing failed: %v", err)
	}
	t.Draw = time.Since(drawStart)
	// Sinks see every step up to drawing. Write and Total are still open.
	ann.Timings = t

	writeStart := time.Now()
	err := proc.sink.Put(frame, ann)
	t.Write = time.Since(writeStart)
	t.Total = time.Since(start)

	proc.observe(index, t, decision.Detected, fps, batch)

	if err != nil {
		if errors.Is(err, stage.ErrStop) {
			proc.log.Info("Stop requested by output")
			return err
		}
		proc.log.Warnf("Output failed: %v", err)
	}

	return nil
}

func (proc *processor) dispatch(frame gocv.Mat, item pingpong.Item[gocv.Mat], results []classify.Result) {
	if proc.dispatcher == nil {
		return
	}

	for _, res := range results {
		outcome := proc.dispatcher.Dispatch(sidefx.Event{
			Key:        res.Label,
			Label:      res.Label,
			Confidence: res.Confidence,
			Box:        res.Region.Box,
			FrameSeq:   item.Seq,
			Time:       item.Time,
			LoadCrop: func() (image.Image, error) {
				crop := proc.classifier.Crop(frame, res)
				defer crop.Close()
				return crop.ToImage()
			},
		})
		if proc.collector != nil {
			proc.collector.ObserveSideEffect(outcome.String())
		}
	}
}

func (proc *processor) observe(index int, t metrics.Timings, detected bool, fps float64, batch classify.Batch) {
	if proc.cfg.LogTimings {
		proc.log.Infof("frame %d: %s", index, t)
	}

	if proc.collector == nil {
		return
	}

	proc.collector.ObserveTimings(t)
	proc.collector.ObserveFrame(detected, fps)
	proc.collector.ObserveSkippedRegions(batch.Skipped)
	for _, res := range batch.Results {
		proc.collector.ObserveResult(res.Label)
	}
	proc.collector.SetBufferDropped(proc.frames.Stats().Dropped)
}
