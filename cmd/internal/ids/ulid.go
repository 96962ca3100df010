// Package ids provides request id primitives (ULID) for outgoing backend calls.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a new ULID string (26 chars).
// ULIDs sort by creation time, which keeps client and backend logs easy to correlate.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNew is New for call sites that cannot handle an entropy failure.
func MustNew(now time.Time) string {
	id, err := New(now)
	if err != nil {
		return ulid.Make().String()
	}
	return id
}
