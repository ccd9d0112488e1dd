package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emotioncam"

// Collector exports pipeline measurements to Prometheus.
type Collector struct {
	stageDuration *prometheus.HistogramVec
	frames        *prometheus.CounterVec
	regions       prometheus.Counter
	results       *prometheus.CounterVec
	sideEffects   *prometheus.CounterVec
	bufferDropped prometheus.Gauge
	fps           prometheus.Gauge
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of the processing steps of one frame in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"stage"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames seen by the processing loop",
			},
			[]string{"detection"}, // detection: ran, reused
		),
		regions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regions_skipped_total",
				Help:      "Regions skipped because of a degenerate crop or an inference error",
			},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Classification results by label",
			},
			[]string{"label"},
		),
		sideEffects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_effects_total",
				Help:      "Side actions by outcome",
			},
			[]string{"status"}, // status: queued, throttled, dropped
		),
		bufferDropped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "buffer_dropped_frames",
				Help:      "Frames overwritten in the capture buffer before being processed",
			},
		),
		fps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "processing_fps",
				Help:      "Smoothed processing frame rate",
			},
		),
	}

	for _, m := range []prometheus.Collector{
		c.stageDuration, c.frames, c.regions, c.results, c.sideEffects, c.bufferDropped, c.fps,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) ObserveTimings(t Timings) {
	for stage, d := range t.byStage() {
		c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (c *Collector) ObserveFrame(detected bool, fps float64) {
	if detected {
		c.frames.WithLabelValues("ran").Inc()
	} else {
		c.frames.WithLabelValues("reused").Inc()
	}
	c.fps.Set(fps)
}

func (c *Collector) ObserveResult(label string) {
	c.results.WithLabelValues(label).Inc()
}

func (c *Collector) ObserveSkippedRegions(n int) {
	c.regions.Add(float64(n))
}

func (c *Collector) ObserveSideEffect(status string) {
	c.sideEffects.WithLabelValues(status).Inc()
}

func (c *Collector) SetBufferDropped(n uint64) {
	c.bufferDropped.Set(float64(n))
}
