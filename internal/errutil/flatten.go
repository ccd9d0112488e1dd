// Package errutil holds small helpers for combining errors.
package errutil

import "strings"

// Flatten combines the non-nil errors into a single error.
//
// It returns nil when every error is nil, and the error itself when there is only one.
// A combined error still matches each of its parts with errors.Is and errors.As.
func Flatten(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return flattened(nonNil)
	}
}

type flattened []error

func (f flattened) Error() string {
	msgs := make([]string, len(f))
	for i, err := range f {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, ", ")
}

func (f flattened) Unwrap() []error {
	return f
}
