// Package siteconfig caches the backend configuration report.
package siteconfig

import (
	"context"
	"log/slog"
	"sync"

	"nitroshare/cmd/internal/api"
)

// Backend fetches the configuration report.
type Backend interface {
	Configuration(ctx context.Context) (api.Report, error)
}

// Recorder receives load outcomes for metrics.
type Recorder interface {
	ConfigLoad(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ConfigLoad(bool) {}

// State is the persisted form of a Store.
type State struct {
	Configuration *api.Report `json:"configuration,omitempty" cbor:"configuration,omitempty"`
}

// Empty reports whether no report is cached.
func (s State) Empty() bool { return s.Configuration == nil }

// Store holds the last configuration report fetched from the backend.
//
// There is no retry, TTL or request coalescing: concurrent loads race and the
// last one to finish decides the cached value.
type Store struct {
	backend Backend
	log     *slog.Logger
	rec     Recorder

	mu     sync.Mutex
	report *api.Report
	subs   []func(State)

	notifyMu sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore(backend Backend, log *slog.Logger, rec Recorder) *Store {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Store{backend: backend, log: log, rec: rec}
}

// Load fetches the report. On success it is cached and returned; on failure
// the cache is cleared and nil is returned.
func (s *Store) Load(ctx context.Context) *api.Report {
	r, err := s.backend.Configuration(ctx)
	if err != nil {
		s.log.Warn("config.load.fail", "status", api.StatusOf(err), "err", err)
		s.rec.ConfigLoad(false)
		s.commit(nil)
		return nil
	}

	s.log.Debug("config.load.ok", "site", r.SiteRules.Name, "allow_registration", r.SiteRules.AllowRegistration)
	s.rec.ConfigLoad(true)
	s.commit(&r)

	out := r
	return &out
}

// Current returns the cached report, or nil.
func (s *Store) Current() *api.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Snapshot returns the persisted form of the store.
func (s *Store) Snapshot() State {
	return State{Configuration: s.Current()}
}

// Restore installs a persisted state. Unlike the session store it does not
// contact the backend.
func (s *Store) Restore(st State) {
	s.commit(st.Configuration)
}

// Subscribe registers fn to be called after every change, in order.
// fn must not call back into the Store.
func (s *Store) Subscribe(fn func(State)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// RegistrationAllowed reports whether the cached report allows sign-ups.
// Without a report it answers true and lets the backend decide.
func (s *Store) RegistrationAllowed() bool {
	r := s.Current()
	if r == nil {
		return true
	}
	return r.SiteRules.AllowRegistration
}

// SiteName returns the configured site name, or def when unknown.
func (s *Store) SiteName(def string) string {
	r := s.Current()
	if r == nil || r.SiteRules.Name == "" {
		return def
	}
	return r.SiteRules.Name
}

func (s *Store) commit(r *api.Report) {
	s.mu.Lock()
	s.report = r
	subs := append([]func(State){}, s.subs...)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	st := State{Configuration: r}
	for _, fn := range subs {
		fn(st)
	}
}
