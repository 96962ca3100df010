package api

import (
	"encoding/json"
	"time"
)

// Session is the server-issued authentication grant returned by login.
type Session struct {
	UserID    int64     `json:"user_id" cbor:"user_id"`
	SessionID string    `json:"session_id" cbor:"session_id"`
	Expires   time.Time `json:"expires" cbor:"expires"`
	Created   time.Time `json:"created" cbor:"created"`
}

// ExpiredAt reports whether the session is expired as of now.
// A session whose expiry equals now counts as expired.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.Expires.After(now)
}

// User is the account profile returned by /api/me and login. Its
// timestamps arrive in RFC 2822; see Timestamp.
type User struct {
	ID                    int64           `json:"id" cbor:"id"`
	Name                  string          `json:"name" cbor:"name"`
	Username              string          `json:"username" cbor:"username"`
	Email                 string          `json:"email" cbor:"email"`
	EmailVerified         *Timestamp      `json:"email_verified,omitempty" cbor:"email_verified,omitempty"`
	Permissions           json.RawMessage `json:"permissions,omitempty" cbor:"permissions,omitempty"`
	PasswordChangedAt     *Timestamp      `json:"password_changed_at,omitempty" cbor:"password_changed_at,omitempty"`
	PasswordResetRequired bool            `json:"password_reset_required" cbor:"password_reset_required"`
	Banned                bool            `json:"banned" cbor:"banned"`
	Created               Timestamp       `json:"created" cbor:"created"`
}

// LoginRequest is the body of POST /api/public/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
// Session is nil when the backend authenticated by API token instead of a session.
type LoginResponse struct {
	User    User     `json:"user"`
	Session *Session `json:"session"`
}

// RegisterRequest is the body of POST /api/public/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// SiteRules is the part of the backend configuration the client acts on.
type SiteRules struct {
	AllowRegistration        bool            `json:"allow_registration" cbor:"allow_registration"`
	RequireEmailVerification bool            `json:"require_email_verification" cbor:"require_email_verification"`
	Name                     string          `json:"name" cbor:"name"`
	MaxPayload               uint64          `json:"max_payload" cbor:"max_payload"`
	AnonymousPermissions     json.RawMessage `json:"anonymous_permissions,omitempty" cbor:"anonymous_permissions,omitempty"`
}

// ServerState describes the backend instance.
type ServerState struct {
	FirstUser bool `json:"first_user" cbor:"first_user"`

	// StartedAt is kept verbatim (RFC 2822); the client only displays it.
	StartedAt string `json:"started_at" cbor:"started_at"`
}

// Report is the backend configuration snapshot served by /api/configuration.
// Sections the client does not interpret are kept raw.
type Report struct {
	State          ServerState     `json:"state" cbor:"state"`
	SessionConfig  json.RawMessage `json:"session_config,omitempty" cbor:"session_config,omitempty"`
	SiteRules      SiteRules       `json:"site_rules" cbor:"site_rules"`
	ImageRules     json.RawMessage `json:"image_rules,omitempty" cbor:"image_rules,omitempty"`
	PasteRules     json.RawMessage `json:"paste_rules,omitempty" cbor:"paste_rules,omitempty"`
	PublicProfiles json.RawMessage `json:"public_profiles,omitempty" cbor:"public_profiles,omitempty"`
}
