package sidefx

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Event is a classification result that may trigger side actions.
type Event struct {
	// Key identifies who or what the event is about; the cooldown is kept per key.
	Key        string
	Label      string
	Confidence float32
	Box        image.Rectangle
	FrameSeq   uint64
	Time       time.Time

	// Crop is the image region the label was computed on. It is owned by the event.
	Crop image.Image

	// LoadCrop fills in Crop. Dispatch calls it synchronously, and only for
	// events that pass the cooldown.
	LoadCrop func() (image.Image, error)

	// SnapshotPath is filled in by Snapshot for the actions running after it.
	SnapshotPath string
}

// Action is one side effect. Actions of an event run in order and see the
// changes earlier actions made to it.
type Action interface {
	Name() string
	Do(ctx context.Context, ev *Event) error
}

type Outcome int

const (
	Queued Outcome = iota
	Throttled
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Throttled:
		return "throttled"
	default:
		return "dropped"
	}
}

// Dispatcher gates events by cooldown and queues their actions.
type Dispatcher struct {
	cooldown *Cooldown
	queue    *Queue
	actions  []Action
	log      logrus.FieldLogger
}

func NewDispatcher(cooldown *Cooldown, queue *Queue, log logrus.FieldLogger, actions ...Action) *Dispatcher {
	return &Dispatcher{
		cooldown: cooldown,
		queue:    queue,
		actions:  actions,
		log:      log.WithField("stage", "SIDEFX"),
	}
}

// Dispatch never blocks. It returns what happened to the event.
func (d *Dispatcher) Dispatch(ev Event) Outcome {
	if len(d.actions) == 0 {
		return Throttled
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	release, ok := d.cooldown.Reserve(ev.Key, ev.Time)
	if !ok {
		return Throttled
	}

	if ev.Crop == nil && ev.LoadCrop != nil {
		crop, err := ev.LoadCrop()
		if err != nil {
			d.log.Warnf("no crop for '%s': %v", ev.Key, err)
		}
		ev.Crop = crop
	}
	ev.LoadCrop = nil

	err := d.queue.Submit(func(ctx context.Context) error {
		for _, a := range d.actions {
			if err := a.Do(ctx, &ev); err != nil {
				return errors.Wrapf(err, "%s action failed for '%s'", a.Name(), ev.Key)
			}
		}
		return nil
	})
	if err != nil {
		// Nothing will run for this event, so the key may fire again right away.
		release()
		d.log.Debugf("side effect for '%s' dropped: %v", ev.Key, err)
		return Dropped
	}

	return Queued
}
