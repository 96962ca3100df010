package realtime

import "time"

// inboundBudget caps the control frames a feed subscriber may send: at most
// len(seen) accepted frames in any window. It belongs to the connection's
// read loop and is not safe for concurrent use.
//
// seen is a ring of accepted frame times; next points at the oldest once the
// ring is full. Rejected frames are not recorded.
type inboundBudget struct {
	seen   []time.Time
	next   int
	full   bool
	window time.Duration
}

func newInboundBudget(frames int, window time.Duration) *inboundBudget {
	if frames <= 0 {
		frames = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &inboundBudget{seen: make([]time.Time, frames), window: window}
}

// spend records a frame received at now, or reports false when the window
// is already used up.
func (b *inboundBudget) spend(now time.Time) bool {
	if b.full && now.Sub(b.seen[b.next]) < b.window {
		return false
	}
	b.seen[b.next] = now
	b.next++
	if b.next == len(b.seen) {
		b.next = 0
		b.full = true
	}
	return true
}
