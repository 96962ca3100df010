package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nitroshare/cmd/internal/api"
)

// Manager is the single source of truth for "am I logged in, and as whom".
//
// It is safe for concurrent use. Every mutation swaps the session/user pair
// under one lock, so readers never see one without the other.
//
// Each Login or clear starts a new epoch. A revalidation only applies its
// result when the epoch it started in is still current, so a logout or a new
// login that lands while /api/me is in flight always wins.
type Manager struct {
	backend Backend
	log     *slog.Logger
	now     func() time.Time
	rec     Recorder

	mu    sync.Mutex
	state State
	epoch uint64
	subs  []func(State)

	// notifyMu keeps subscriber notifications in mutation order.
	notifyMu sync.Mutex
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithLogger sets the diagnostic sink for swallowed backend failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the time source used for local expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(m *Manager) {
		if rec != nil {
			m.rec = rec
		}
	}
}

// NewManager constructs an empty (logged out) Manager.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		log:     slog.Default(),
		now:     time.Now,
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

// Subscribe registers fn to be called with the new state after every change.
// Calls are serialized and delivered in mutation order. fn must not call
// back into the Manager; it receives everything it needs as its argument.
func (m *Manager) Subscribe(fn func(State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current session, or nil when logged out.
func (m *Manager) Session() *api.Session {
	return m.Snapshot().Session
}

// User returns the current user, or nil when logged out.
func (m *Manager) User() *api.User {
	return m.Snapshot().User
}

// LoggedIn reports whether a session is held. It does not check expiry.
func (m *Manager) LoggedIn() bool {
	return m.Session() != nil
}

// Login installs a session and user. The pair is trusted as given; callers
// obtain it from the backend (see Authenticate).
func (m *Manager) Login(s api.Session, u api.User) {
	m.mu.Lock()
	m.epoch++
	m.commitLocked(State{Session: &s, User: &u})
}

// Logout notifies the backend and clears the local state.
//
// The backend call is best effort: its failure is logged and otherwise ignored,
// and the local state is cleared either way.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.backend.Logout(ctx); err != nil {
		m.log.Warn("session.logout.remote_fail", "status", api.StatusOf(err), "err", err)
		m.rec.Logout(false)
	} else {
		m.rec.Logout(true)
	}

	m.mu.Lock()
	m.epoch++
	m.commitLocked(State{})
	m.log.Info("session.logout")
}

// UpdateUser revalidates the current session and returns the refreshed user.
//
// It returns nil without a backend call when no session is held, or when the
// session's expiry is at or before now (the state is cleared in that case).
// Otherwise it fetches /api/me once: success replaces the user and leaves the
// session as is; any failure clears both. Expiry is judged by the local clock.
func (m *Manager) UpdateUser(ctx context.Context) *api.User {
	m.mu.Lock()
	cur := m.state
	if cur.Session == nil {
		m.mu.Unlock()
		m.rec.Revalidation(OutcomeAbsent)
		return nil
	}
	if cur.Session.ExpiredAt(m.now()) {
		m.epoch++
		m.commitLocked(State{})
		m.log.Info("session.expired", "user_id", cur.Session.UserID, "expires", cur.Session.Expires)
		m.rec.Revalidation(OutcomeExpired)
		return nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	u, err := m.backend.Me(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.log.Debug("session.revalidate.stale", "user_id", cur.Session.UserID)
		m.rec.Revalidation(OutcomeStale)
		return nil
	}

	if err != nil {
		m.epoch++
		m.commitLocked(State{})
		m.log.Warn("session.revalidate.fail",
			"user_id", cur.Session.UserID,
			"status", api.StatusOf(err),
			"canceled", errors.Is(err, context.Canceled),
			"err", err,
		)
		m.rec.Revalidation(OutcomeRejected)
		return nil
	}

	sess := *m.state.Session
	m.commitLocked(State{Session: &sess, User: &u})
	m.log.Debug("session.revalidate.ok", "user_id", u.ID, "username", u.Username)
	m.rec.Revalidation(OutcomeValid)

	out := u
	return &out
}

// Restore installs a persisted state and starts revalidating it.
//
// The returned Pending completes when revalidation finishes. Application
// startup waits on it before serving guarded routes, so the guard never reads
// a restored session the backend has already dropped.
func (m *Manager) Restore(ctx context.Context, st State) *Pending {
	st = st.Normalize()

	m.mu.Lock()
	m.epoch++
	m.commitLocked(st)

	p := newPending()
	go func() {
		p.resolve(m.UpdateUser(ctx))
	}()
	return p
}

// Authenticate logs in against the backend and installs the returned pair.
func (m *Manager) Authenticate(ctx context.Context, a Authenticator, username, password string) (api.User, error) {
	out, err := a.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		if api.StatusOf(err) == http.StatusUnauthorized {
			return api.User{}, ErrInvalidCredentials
		}
		return api.User{}, err
	}
	if out.Session == nil {
		return api.User{}, ErrNoSession
	}

	m.Login(*out.Session, out.User)
	m.log.Info("session.login", "user_id", out.User.ID, "expires", out.Session.Expires)
	return out.User, nil
}

// commitLocked installs next, releases m.mu and notifies subscribers in order.
// m.mu must be held on entry.
func (m *Manager) commitLocked(next State) {
	next = next.Normalize()
	m.state = next

	sid := ""
	if next.Session != nil {
		sid = next.Session.SessionID
	}
	m.backend.SetSession(sid)

	subs := append([]func(State){}, m.subs...)

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}
