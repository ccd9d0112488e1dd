// Package metrics measures the processing loop: a smoothed frame rate, per-stage
// timings and their Prometheus export. None of it affects control flow.
package metrics

import "time"

const (
	DefaultAlpha        = 0.15
	DefaultWarmupFrames = 30
)

// Smoother keeps an exponentially smoothed frame rate:
//
//	smoothed = (1-alpha)*smoothed + alpha*instantaneous
//
// where instantaneous is frames/elapsed since the last reseed. The estimate starts
// at the nominal rate and is reseeded to it once the warm-up frame count is reached,
// which keeps start-up jitter out of the displayed value.
type Smoother struct {
	Alpha        float64
	WarmupFrames int

	nominal  float64
	smoothed float64
	frames   int
	start    time.Time
	warmedUp bool
	now      func() time.Time
}

func NewSmoother(nominal float64, alpha float64, warmupFrames int) *Smoother {
	return newSmoother(nominal, alpha, warmupFrames, time.Now)
}

func newSmoother(nominal float64, alpha float64, warmupFrames int, now func() time.Time) *Smoother {
	return &Smoother{
		Alpha:        alpha,
		WarmupFrames: warmupFrames,
		nominal:      nominal,
		smoothed:     nominal,
		start:        now(),
		now:          now,
	}
}

// Tick records one processed frame and returns the updated estimate.
func (s *Smoother) Tick() float64 {
	s.frames++
	now := s.now()

	if !s.warmedUp && s.WarmupFrames > 0 && s.frames >= s.WarmupFrames {
		s.warmedUp = true
		s.frames = 0
		s.start = now
		s.smoothed = s.nominal
		return s.smoothed
	}

	elapsed := now.Sub(s.start).Seconds()
	inst := s.smoothed
	if elapsed > 0 {
		inst = float64(s.frames) / elapsed
	}

	s.smoothed = (1-s.Alpha)*s.smoothed + s.Alpha*inst
	return s.smoothed
}

func (s *Smoother) Value() float64 {
	return s.smoothed
}
