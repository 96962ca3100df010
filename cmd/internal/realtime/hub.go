package realtime

import (
	"log/slog"
	"sync"
	"time"

	"nitroshare/cmd/internal/auth/session"
)

// Hub fans session changes out to connected clients and remembers the last
// one so new clients start from the current state.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	last    SessionPayload
	members map[string]*Client
}

// NewHub constructs a Hub in the logged-out state.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     time.Now,
		members: make(map[string]*Client),
	}
}

// Attach subscribes the hub to a session source.
func (h *Hub) Attach(src interface{ Subscribe(func(session.State)) }) {
	src.Subscribe(h.Publish)
}

// Publish records st and broadcasts it to every member.
func (h *Hub) Publish(st session.State) {
	p := payloadOf(st)

	h.mu.Lock()
	h.last = p
	h.mu.Unlock()

	h.Broadcast(newEnvelope(TypeSessionChanged, p, h.now().UTC()))
}

// Current returns the last published state.
func (h *Hub) Current() SessionPayload {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Join adds a client to the fanout.
func (h *Hub) Join(c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}

	h.mu.Lock()
	h.members[c.ConnID] = c
	n := len(h.members)
	h.mu.Unlock()

	h.log.Info("feed.member.join", "conn_id", c.ConnID, "members", n)
}

// Leave removes a client and signals its shutdown.
func (h *Hub) Leave(connID string) {
	if connID == "" {
		return
	}

	h.mu.Lock()
	c := h.members[connID]
	delete(h.members, connID)
	h.mu.Unlock()

	// Closed after removal so a broadcaster never holds a closing member.
	if c != nil {
		c.Close()
	}

	h.log.Info("feed.member.leave", "conn_id", connID)
}

// Members returns the number of connected clients.
func (h *Hub) Members() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Broadcast sends env to every member without blocking. Full queues drop.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range h.members {
		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			h.log.Debug("feed.drop", "conn_id", m.ConnID, "type", env.Type)
		}
	}
}

func payloadOf(st session.State) SessionPayload {
	st = st.Normalize()
	if st.Session == nil {
		return SessionPayload{}
	}
	exp := st.Session.Expires
	return SessionPayload{
		LoggedIn: true,
		UserID:   st.User.ID,
		Username: st.User.Username,
		Expires:  &exp,
	}
}
