package api

import (
	"errors"
	"fmt"
)

// ErrStatus is the kind of every non-2xx backend response.
var ErrStatus = errors.New("unexpected status")

// StatusError reports a backend response outside the 2xx range.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %v: %d", e.Op, ErrStatus, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// StatusOf returns the HTTP status carried by err, or 0 when the request
// never produced a response (transport failure, bad URL, canceled context).
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
