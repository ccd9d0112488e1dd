package sidefx

import (
	"context"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
)

// EventWriter is the part of the store the Recorder needs.
type EventWriter interface {
	RecordEvent(ctx context.Context, ev store.Event) (int64, error)
}

// Recorder inserts one event row per event.
type Recorder struct {
	Store     EventWriter
	SessionID string
}

func (r *Recorder) Name() string {
	return "record"
}

func (r *Recorder) Do(ctx context.Context, ev *Event) error {
	_, err := r.Store.RecordEvent(ctx, store.Event{
		SessionID:    r.SessionID,
		Label:        ev.Label,
		Confidence:   ev.Confidence,
		Box:          ev.Box,
		FrameSeq:     ev.FrameSeq,
		SnapshotPath: ev.SnapshotPath,
		CreatedAt:    ev.Time,
	})
	return err
}
