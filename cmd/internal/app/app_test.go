package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nitroshare/cmd/internal/api"
	"nitroshare/cmd/internal/auth/session"
	"nitroshare/cmd/internal/persist"
	"nitroshare/cmd/internal/register"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
		{name: "port only", in: ":5180", want: "http://127.0.0.1:5180"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://share.example.com", want: "wss://share.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

// fakeBackend is a minimal nitro_share backend. Session "sid-1" belongs to
// alice; any other credential is rejected.
type fakeBackend struct {
	srv     *httptest.Server
	meCalls   atomic.Int32
	logouts   atomic.Int32
	registers atomic.Int32
}

var testUser = api.User{ID: 7, Username: "alice", Name: "Alice", Email: "alice@example.com"}

// testUserWire is testUser as the backend serializes it.
const testUserWire = `{"id":7,"name":"Alice","username":"alice","email":"alice@example.com",` +
	`"email_verified":"Tue, 1 Jul 2025 10:52:37 +0000","password_changed_at":null,` +
	`"password_reset_required":false,"banned":false,"created":"Mon, 9 Jun 2025 08:15:02 +0000"}`

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.PathMe, func(w http.ResponseWriter, r *http.Request) {
		fb.meCalls.Add(1)
		if r.Header.Get("Authorization") != "session sid-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeRaw(w, http.StatusOK, testUserWire)
	})
	mux.HandleFunc("GET "+api.PathLogout, func(w http.ResponseWriter, _ *http.Request) {
		fb.logouts.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET "+api.PathConfiguration, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, api.Report{
			SiteRules: api.SiteRules{AllowRegistration: true, Name: "Test Share"},
		})
	})
	mux.HandleFunc("POST "+api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var in api.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username != "alice" || in.Password != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		now := time.Now().UTC()
		writeRaw(w, http.StatusCreated, `{"user":`+testUserWire+`,"session":{"user_id":7,"session_id":"sid-1",`+
			`"expires":"`+now.Add(time.Hour).Format(time.RFC3339Nano)+`","created":"`+now.Format(time.RFC3339Nano)+`"}}`)
	})
	mux.HandleFunc("POST "+api.PathRegister, func(w http.ResponseWriter, r *http.Request) {
		fb.registers.Add(1)
		var in api.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username != "bob" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeRaw(w, http.StatusCreated, `{"id":8,"name":"","username":"bob","email":"`+in.Email+`",`+
			`"email_verified":null,"password_reset_required":false,"banned":false,`+
			`"created":"Wed, 2 Jul 2025 07:00:00 +0000"}`)
	})
	mux.HandleFunc("POST "+api.PathRegisterCheck, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte(`"alice"`)) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func testConfig(t *testing.T, apiURL string) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.APIURL = apiURL
	cfg.State.Backend = BackendFile
	cfg.State.Dir = t.TempDir()
	cfg.HTTPAddr = "127.0.0.1:0"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// persistSession writes st where the app will look for it on startup.
func persistSession(t *testing.T, cfg Config, st session.State) {
	t.Helper()

	fs, err := persist.NewFileStore(cfg.State.Dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	b, err := persist.Bind[session.State](fs, persist.JSON, keySession, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := b.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func persistedSession(t *testing.T, cfg Config) (session.State, bool) {
	t.Helper()

	fs, err := persist.NewFileStore(cfg.State.Dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	b, err := persist.Bind[session.State](fs, persist.JSON, keySession, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	st, found, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st, found
}

func startApp(t *testing.T, cfg Config) *App {
	t.Helper()

	ctx := context.Background()
	a, err := New(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func sessionState(sid string, expires time.Time) session.State {
	u := testUser
	return session.State{
		Session: &api.Session{UserID: u.ID, SessionID: sid, Expires: expires, Created: expires.Add(-time.Hour)},
		User:    &u,
	}
}

func TestStart_RestoresAndRevalidates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		sid        string
		expires    time.Time
		wantMe     int32
		wantLogged bool
	}{
		{name: "valid", sid: "sid-1", expires: time.Now().Add(time.Hour), wantMe: 1, wantLogged: true},
		{name: "expired skips backend", sid: "sid-1", expires: time.Now().Add(-time.Minute), wantMe: 0, wantLogged: false},
		{name: "rejected", sid: "revoked", expires: time.Now().Add(time.Hour), wantMe: 1, wantLogged: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fb := newFakeBackend(t)
			cfg := testConfig(t, fb.srv.URL)
			persistSession(t, cfg, sessionState(tc.sid, tc.expires))

			a := startApp(t, cfg)

			if got := fb.meCalls.Load(); got != tc.wantMe {
				t.Fatalf("me calls=%d want=%d", got, tc.wantMe)
			}
			if got := a.Sessions().LoggedIn(); got != tc.wantLogged {
				t.Fatalf("LoggedIn()=%v want=%v", got, tc.wantLogged)
			}
			if _, found := persistedSession(t, cfg); found != tc.wantLogged {
				t.Fatalf("persisted=%v want=%v", found, tc.wantLogged)
			}
		})
	}
}

func TestStart_CorruptStateStartsLoggedOut(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	cfg := testConfig(t, fb.srv.URL)

	fs, err := persist.NewFileStore(cfg.State.Dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fs.Save(context.Background(), keySession, []byte("{not json")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a := startApp(t, cfg)
	if a.Sessions().LoggedIn() {
		t.Fatalf("LoggedIn()=true want=false")
	}
	if got := fb.meCalls.Load(); got != 0 {
		t.Fatalf("me calls=%d want=0", got)
	}
}

func TestExecute_GuardRedirectsWhenLoggedOut(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	a := startApp(t, testConfig(t, fb.srv.URL))

	var out, errOut bytes.Buffer
	err := a.Execute(context.Background(), []string{"me"}, IO{In: strings.NewReader(""), Out: &out, Err: &errOut})

	var exit *ExitError
	if !errors.As(err, &exit) || exit.ExitCode() != exitRedirected {
		t.Fatalf("Execute(me)=%v want exit %d", err, exitRedirected)
	}
	if !strings.Contains(errOut.String(), "requires a session") {
		t.Fatalf("stderr=%q want login hint", errOut.String())
	}
	if got := fb.meCalls.Load(); got != 0 {
		t.Fatalf("me calls=%d want=0", got)
	}
}

func TestExecute_LoginMeLogout(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	cfg := testConfig(t, fb.srv.URL)
	a := startApp(t, cfg)
	ctx := context.Background()

	var out, errOut bytes.Buffer
	s := IO{In: strings.NewReader("hunter22\n"), Out: &out, Err: &errOut}

	if err := a.Execute(ctx, []string{"login", "--username", "alice", "--password-stdin"}, s); err != nil {
		t.Fatalf("login: %v (stderr=%q)", err, errOut.String())
	}
	if !strings.Contains(out.String(), "logged in as alice") {
		t.Fatalf("stdout=%q", out.String())
	}
	if st, found := persistedSession(t, cfg); !found || st.Session.SessionID != "sid-1" {
		t.Fatalf("persisted=%+v found=%v want sid-1", st, found)
	}

	out.Reset()
	if err := a.Execute(ctx, []string{"me", "--json"}, s); err != nil {
		t.Fatalf("me: %v", err)
	}
	var u api.User
	if err := json.Unmarshal(out.Bytes(), &u); err != nil || u.Username != "alice" {
		t.Fatalf("me output=%q err=%v", out.String(), err)
	}

	out.Reset()
	if err := a.Execute(ctx, []string{"logout"}, s); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if fb.logouts.Load() != 1 {
		t.Fatalf("logouts=%d want=1", fb.logouts.Load())
	}
	if _, found := persistedSession(t, cfg); found {
		t.Fatalf("session still persisted after logout")
	}
}

func TestExecute_LoginRejected(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	a := startApp(t, testConfig(t, fb.srv.URL))

	var out, errOut bytes.Buffer
	s := IO{In: strings.NewReader("wrong\n"), Out: &out, Err: &errOut}
	err := a.Execute(context.Background(), []string{"login", "-u", "alice", "--password-stdin"}, s)

	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("login=%v want exit 1", err)
	}
	if a.Sessions().LoggedIn() {
		t.Fatalf("LoggedIn()=true after rejected login")
	}
}

func TestExecute_RegisterReadsPasswordAndConfirmation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		stdin        string
		wantErr      error
		wantOut      string
		wantRegister int32
	}{
		{name: "matching lines", stdin: "correct horse\ncorrect horse\n", wantOut: "registered bob", wantRegister: 1},
		{name: "confirmation differs", stdin: "correct horse\ncorrect h0rse\n", wantErr: register.ErrPasswordMismatch},
		{name: "confirmation missing", stdin: "correct horse\n"},
		{name: "empty stdin", stdin: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fb := newFakeBackend(t)
			a := startApp(t, testConfig(t, fb.srv.URL))

			var out bytes.Buffer
			s := IO{In: strings.NewReader(tc.stdin), Out: &out, Err: io.Discard}
			err := a.Execute(context.Background(),
				[]string{"register", "-u", "bob", "-e", "bob@example.com", "--password-stdin"}, s)

			switch {
			case tc.wantOut != "":
				if err != nil || !strings.Contains(out.String(), tc.wantOut) {
					t.Fatalf("register=%v stdout=%q want %q", err, out.String(), tc.wantOut)
				}
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("register=%v want=%v", err, tc.wantErr)
				}
			default:
				if err == nil {
					t.Fatalf("register(%q) succeeded, want stdin error", tc.stdin)
				}
			}
			if got := fb.registers.Load(); got != tc.wantRegister {
				t.Fatalf("backend registers=%d want=%d", got, tc.wantRegister)
			}
		})
	}
}

func TestExecute_Check(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	a := startApp(t, testConfig(t, fb.srv.URL))

	cases := []struct {
		args     []string
		wantOut  string
		wantExit bool
	}{
		{args: []string{"check", "username", "bob"}, wantOut: "ok"},
		{args: []string{"check", "username", "alice"}, wantOut: "taken", wantExit: true},
		{args: []string{"check", "email", "bob@example.com"}, wantOut: "ok"},
	}

	for _, tc := range cases {
		var out bytes.Buffer
		err := a.Execute(context.Background(), tc.args, IO{In: strings.NewReader(""), Out: &out, Err: io.Discard})
		if got := strings.TrimSpace(out.String()); got != tc.wantOut {
			t.Fatalf("Execute(%q) out=%q want=%q", tc.args, got, tc.wantOut)
		}
		if (err != nil) != tc.wantExit {
			t.Fatalf("Execute(%q)=%v wantExit=%v", tc.args, err, tc.wantExit)
		}
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	a := startApp(t, testConfig(t, fb.srv.URL))

	err := a.Execute(context.Background(), []string{"upload"}, IO{In: strings.NewReader(""), Out: io.Discard, Err: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("Execute(upload)=%v want unknown command", err)
	}
}

func TestHandler_GuardedPages(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	a := startApp(t, testConfig(t, fb.srv.URL))

	h, err := a.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("GET /profile status=%d want=%d", rr.Code, http.StatusFound)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Fatalf("Location=%q want=/login", loc)
	}

	a.Sessions().Login(*sessionState("sid-1", time.Now().Add(time.Hour)).Session, testUser)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /profile after login status=%d want=%d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}

	for _, path := range []string{"/", "/login", "/register", "/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d want=%d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := Run(context.Background(), []string{"--help"}, IO{In: strings.NewReader(""), Out: &out, Err: io.Discard}); err != nil {
		t.Fatalf("Run(--help)=%v", err)
	}
	for _, want := range []string{"login", "check", "serve", "--api-url"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("usage missing %q:\n%s", want, out.String())
		}
	}
}
