package session

import (
	"context"

	"nitroshare/cmd/internal/api"
)

// State is the persisted form of a Manager.
//
// A State is either empty (both nil) or complete (both set); Normalize
// enforces that on anything read from storage.
type State struct {
	Session *api.Session `json:"session,omitempty" cbor:"session,omitempty"`
	User    *api.User    `json:"user,omitempty" cbor:"user,omitempty"`
}

// Empty reports whether the state holds no session.
func (s State) Empty() bool { return s.Session == nil || s.User == nil }

// Normalize returns s if it is complete and the empty State otherwise.
func (s State) Normalize() State {
	if s.Empty() {
		return State{}
	}
	return s
}

// Backend is the part of the API client the Manager needs.
type Backend interface {
	// Me fetches the user behind the session currently sent by the client.
	Me(ctx context.Context) (api.User, error)

	// Logout notifies the backend that the current session should be dropped.
	Logout(ctx context.Context) error

	// SetSession sets the credential sent with subsequent requests; empty clears it.
	SetSession(sessionID string)
}

// Authenticator exchanges credentials for a session grant.
type Authenticator interface {
	Login(ctx context.Context, in api.LoginRequest) (api.LoginResponse, error)
}

// Recorder receives lifecycle outcomes for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	Revalidation(outcome string)
	Logout(remoteOK bool)
}

// Revalidation outcomes reported to Recorder.
const (
	OutcomeAbsent   = "absent"
	OutcomeExpired  = "expired"
	OutcomeValid    = "valid"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
)

type nopRecorder struct{}

func (nopRecorder) Revalidation(string) {}
func (nopRecorder) Logout(bool)         {}
