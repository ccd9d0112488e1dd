// Package classify runs an image classifier on the regions found in a frame.
package classify

import (
	"fmt"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

// Model is a loaded classifier. Input is an image tensor, Output a score vector.
// A Model is invoked from one goroutine at a time.
type Model interface {
	Input() tensor.Info
	Output() tensor.Info
	Invoke(in tensor.Tensor) (tensor.Tensor, error)
	Close() error
}

// Capability describes the compute backend a model ended up on.
type Capability struct {
	Backend string
	Target  string

	// Fallback is set when the preferred backend could not be used.
	Fallback bool
	Reason   string
}

func (c Capability) String() string {
	s := fmt.Sprintf("%s/%s", c.Backend, c.Target)
	if c.Fallback {
		s += fmt.Sprintf(" (fallback: %s)", c.Reason)
	}
	return s
}
