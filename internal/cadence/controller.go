// Package cadence decides when the processing loop runs the expensive region
// detector and when it reuses the regions found last time.
package cadence

import (
	"image"

	"github.com/pkg/errors"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

// Frame describes the processed frame a decision is made for.
type Frame struct {
	// Index counts processed frames, starting at 0.
	Index  int
	Seq    uint64
	Bounds image.Rectangle
}

// Decision is the outcome of one Step.
type Decision struct {
	Regions []region.Region

	// Detected reports whether the detector ran on this frame.
	Detected bool

	// Err is the detector error, if any. The previous regions are kept.
	Err error
}

type DetectFunc func() ([]region.Region, error)

// Controller runs detection every Interval processed frames.
//
// An Interval of 0 runs detection on every frame. Detection also runs whenever no
// regions are known. A detection pass that finds no valid region keeps the previous
// set and does not advance the last detection index, so the next frame retries.
type Controller struct {
	interval int
	guard    region.Guard

	lastIndex int
	hasLast   bool
	regions   []region.Region
}

func New(interval int, guard region.Guard) (*Controller, error) {
	if interval < 0 {
		return nil, errors.Errorf("detection interval must not be negative, got %d", interval)
	}

	return &Controller{
		interval: interval,
		guard:    guard,
	}, nil
}

func (c *Controller) ShouldDetect(index int) bool {
	return c.interval == 0 ||
		!c.hasLast ||
		len(c.regions) == 0 ||
		index-c.lastIndex >= c.interval
}

// Step returns the regions to use for frame, running detect when it is due.
func (c *Controller) Step(frame Frame, detect DetectFunc) Decision {
	if !c.ShouldDetect(frame.Index) {
		return Decision{Regions: c.regions}
	}

	found, err := detect()
	if err != nil {
		return Decision{Regions: c.regions, Detected: true, Err: err}
	}

	valid := make([]region.Region, 0, len(found))
	for _, r := range found {
		r.Box = region.Clamp(r.Box, frame.Bounds)
		if !c.guard.Valid(r.Box, frame.Bounds) {
			continue
		}

		r.Seq = frame.Seq
		valid = append(valid, r)
	}

	if len(valid) > 0 {
		region.SortByArea(valid)
		c.regions = valid
		c.lastIndex = frame.Index
		c.hasLast = true
	}

	return Decision{Regions: c.regions, Detected: true}
}

// Reset forgets the known regions, forcing detection on the next frame.
func (c *Controller) Reset() {
	c.regions = nil
	c.hasLast = false
	c.lastIndex = 0
}
