package realtime

import "time"

const (
	// Max bytes per inbound frame. Inbound frames are small control requests.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound rate limit (events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
