package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSmootherStartsAtNominal(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := newSmoother(30, DefaultAlpha, 0, clk.now)

	assert.Equal(t, 30.0, s.Value())

	clk.advance(100 * time.Millisecond)
	// 1 frame in 0.1s = 10 fps instantaneous.
	assert.InDelta(t, 0.85*30+0.15*10, s.Tick(), 1e-9)
}

func TestSmootherConvergesToMeasuredRate(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := newSmoother(30, DefaultAlpha, 0, clk.now)

	var v float64
	for i := 0; i < 200; i++ {
		clk.advance(50 * time.Millisecond)
		v = s.Tick()
	}
	assert.InDelta(t, 20, v, 0.5)
}

func TestSmootherReseedsAfterWarmup(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := newSmoother(30, DefaultAlpha, 3, clk.now)

	for i := 0; i < 2; i++ {
		clk.advance(time.Second)
		s.Tick()
	}
	assert.Less(t, s.Value(), 30.0)

	clk.advance(time.Second)
	assert.Equal(t, 30.0, s.Tick())

	// Later frames never reseed again.
	for i := 0; i < 10; i++ {
		clk.advance(time.Second)
		s.Tick()
	}
	assert.Less(t, s.Value(), 10.0)
}

func TestTimingsString(t *testing.T) {
	s := Timings{Detect: 1500 * time.Microsecond, Total: 20 * time.Millisecond}.String()
	assert.Contains(t, s, "detect=  1.50ms")
	assert.Contains(t, s, "total= 20.00ms")
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveFrame(true, 25)
	c.ObserveFrame(false, 26)
	c.ObserveFrame(false, 27)
	c.ObserveResult("Happy")
	c.ObserveSideEffect("queued")
	c.ObserveSkippedRegions(2)
	c.SetBufferDropped(5)
	c.ObserveTimings(Timings{Detect: time.Millisecond})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("ran")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames.WithLabelValues("reused")))
	assert.Equal(t, 27.0, testutil.ToFloat64(c.fps))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.results.WithLabelValues("Happy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.regions))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.bufferDropped))
	assert.Equal(t, 7, testutil.CollectAndCount(c.stageDuration))

	_, err = NewCollector(reg)
	assert.Error(t, err, "metrics are registered only once per registry")
}
