package stage

import (
	"context"

	"github.com/pkg/errors"
)

// NotSent is returned by NonBlockingSend when the channel has no room.
var NotSent = errors.New("value not sent")

// NonBlockingSend hands v to ch if ch can take it right now. It never waits.
func NonBlockingSend[T any](ctx context.Context, ch chan<- T, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case ch <- v:
		return nil
	default:
		return NotSent
	}
}
