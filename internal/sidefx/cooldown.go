// Package sidefx runs actions triggered by classification results (snapshots,
// event records, spoken announcements) off the processing loop, at most once per
// cooldown window per identity.
package sidefx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown allows one event per key per window.
type Cooldown struct {
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Reserve takes the window of key at now if it is free. The returned release
// function gives the window back, for events that end up not being acted on.
// A non-positive window lets every event through.
func (c *Cooldown) Reserve(key string, now time.Time) (release func(), ok bool) {
	if c.window <= 0 {
		return func() {}, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lim, found := c.limiters[key]
	if !found {
		lim = rate.NewLimiter(rate.Every(c.window), 1)
		c.limiters[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}

	return func() { r.CancelAt(now) }, true
}
