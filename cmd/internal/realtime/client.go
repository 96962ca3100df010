package realtime

import "sync"

// Client represents one connected feed subscriber.
//
// Send is never closed by the server so concurrent broadcasters cannot panic.
// Close is idempotent and only signals done.
type Client struct {
	ConnID string
	Send   chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 16
	}
	return &Client{
		ConnID: connID,
		Send:   make(chan Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
