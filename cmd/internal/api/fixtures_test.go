package api

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// Bodies as the backend writes them: user and server timestamps in
// RFC 2822 with an unpadded day, session timestamps in RFC 3339.
const (
	backendUserJSON = `{
		"id": 1,
		"name": "Alice",
		"username": "alice",
		"email": "alice@example.com",
		"email_verified": null,
		"permissions": {"admin": true},
		"password_changed_at": "Tue, 1 Jul 2025 10:52:37 +0000",
		"password_reset_required": false,
		"banned": false,
		"created": "Mon, 9 Jun 2025 08:15:02 +0000"
	}`

	backendLoginJSON = `{
		"user": ` + backendUserJSON + `,
		"session": {
			"user_id": 1,
			"session_id": "5f2b8c1e-sid",
			"expires": "2025-07-08T10:52:37.123456Z",
			"created": "2025-07-01T10:52:37.123456Z"
		}
	}`

	backendReportJSON = `{
		"state": {"first_user": false, "started_at": "Tue, 1 Jul 2025 09:00:00 +0000"},
		"session_config": {"lifespan": 604800},
		"site_rules": {
			"allow_registration": true,
			"require_email_verification": false,
			"name": "nitro_share",
			"max_payload": 10485760
		},
		"image_rules": {},
		"paste_rules": {},
		"public_profiles": {}
	}`
)

func serveBody(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestMe_DecodesBackendUser(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, serveBody(http.StatusOK, backendUserJSON))
	c.SetSession("5f2b8c1e-sid")

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.Username != "alice" || u.ID != 1 {
		t.Fatalf("unexpected user %+v", u)
	}
	if want := time.Date(2025, 6, 9, 8, 15, 2, 0, time.UTC); !u.Created.Equal(want) {
		t.Fatalf("Created=%v want=%v", u.Created.Time, want)
	}
	if u.EmailVerified != nil {
		t.Fatalf("EmailVerified=%v want nil", u.EmailVerified)
	}
	if u.PasswordChangedAt == nil || u.PasswordChangedAt.Day() != 1 {
		t.Fatalf("PasswordChangedAt=%v want 1 Jul 2025", u.PasswordChangedAt)
	}
}

func TestLogin_DecodesBackendResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, serveBody(http.StatusOK, backendLoginJSON))

	out, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.Session == nil {
		t.Fatalf("Session=nil want decoded session")
	}
	want := time.Date(2025, 7, 8, 10, 52, 37, 123456000, time.UTC)
	if !out.Session.Expires.Equal(want) {
		t.Fatalf("Expires=%v want=%v", out.Session.Expires, want)
	}
	if out.User.Created.IsZero() {
		t.Fatalf("user Created not decoded")
	}
}

func TestConfiguration_DecodesBackendReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, serveBody(http.StatusOK, backendReportJSON))

	rep, err := c.Configuration(context.Background())
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if rep.State.StartedAt != "Tue, 1 Jul 2025 09:00:00 +0000" {
		t.Fatalf("StartedAt=%q", rep.State.StartedAt)
	}
	if !rep.SiteRules.AllowRegistration || rep.SiteRules.Name != "nitro_share" {
		t.Fatalf("SiteRules=%+v", rep.SiteRules)
	}
}
