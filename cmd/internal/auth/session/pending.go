package session

import (
	"context"

	"nitroshare/cmd/internal/api"
)

// Pending is an in-flight revalidation started by Restore.
type Pending struct {
	done chan struct{}
	user *api.User
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(u *api.User) {
	p.user = u
	close(p.done)
}

// Done is closed when revalidation has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until revalidation finishes or ctx is done. The user is nil
// when the restored session was absent, expired, or rejected.
func (p *Pending) Wait(ctx context.Context) (*api.User, error) {
	select {
	case <-p.done:
		return p.user, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
