package router

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"nitroshare/cmd/internal/api"
)

type fakeSessions struct {
	mu   sync.Mutex
	sess *api.Session
}

func (f *fakeSessions) Session() *api.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

func (f *fakeSessions) set(s *api.Session) {
	f.mu.Lock()
	f.sess = s
	f.mu.Unlock()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGuard(t *testing.T) {
	t.Parallel()

	// An expired session still passes: the guard never checks expiry.
	expired := &api.Session{SessionID: "s", Expires: time.Unix(0, 0)}

	cases := []struct {
		name string
		sess *api.Session
		to   Route
		want *Redirect
	}{
		{name: "auth route without session", to: Route{Name: RouteProfile, Meta: Meta{RequiresAuth: true}}, want: &Redirect{Name: RouteLogin}},
		{name: "auth route with session", sess: expired, to: Route{Name: RouteProfile, Meta: Meta{RequiresAuth: true}}},
		{name: "public route without session", to: Route{Name: RouteHome}},
		{name: "public route with session", sess: expired, to: Route{Name: RouteLogin}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := Guard(&fakeSessions{sess: tc.sess})
			got := g(tc.to)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("Guard(%q)=%+v want=nil", tc.to.Name, got)
			case tc.want != nil && (got == nil || *got != *tc.want):
				t.Fatalf("Guard(%q)=%+v want=%+v", tc.to.Name, got, tc.want)
			}
		})
	}
}

func TestNavigate(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	var redirects []string
	r, err := New(DefaultRoutes(), WithLogger(quiet()), WithRedirectHook(func(from, to string) {
		redirects = append(redirects, from+"->"+to)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.BeforeEach(Guard(sessions))

	nav, err := r.Navigate(RouteProfile)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if nav.To.Name != RouteLogin || nav.RedirectedFrom != RouteProfile || !nav.Redirected() {
		t.Fatalf("Navigate(profile) logged out=%+v", nav)
	}

	sessions.set(&api.Session{SessionID: "s"})
	nav, err = r.Navigate(RouteProfile)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if nav.To.Name != RouteProfile || nav.Redirected() {
		t.Fatalf("Navigate(profile) logged in=%+v", nav)
	}

	if len(redirects) != 1 || redirects[0] != "profile->login" {
		t.Fatalf("redirects=%v", redirects)
	}

	if _, err := r.Navigate("nope"); !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("Navigate(nope) err=%v want ErrUnknownRoute", err)
	}
}

func TestNavigate_FirstGuardRedirectWins(t *testing.T) {
	t.Parallel()

	r, err := New(DefaultRoutes(), WithLogger(quiet()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var secondCalled bool
	r.BeforeEach(func(Route) *Redirect { return &Redirect{Name: RouteRegister} })
	r.BeforeEach(func(Route) *Redirect { secondCalled = true; return &Redirect{Name: RouteLogin} })

	nav, err := r.Navigate(RouteHome)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if nav.To.Name != RouteRegister || secondCalled {
		t.Fatalf("nav=%+v secondCalled=%v", nav, secondCalled)
	}

	r2, _ := New(DefaultRoutes(), WithLogger(quiet()))
	r2.BeforeEach(func(Route) *Redirect { return &Redirect{Name: "missing"} })
	if _, err := r2.Navigate(RouteHome); !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("redirect to unknown route err=%v", err)
	}
}

func TestNew_RejectsBadTables(t *testing.T) {
	t.Parallel()

	cases := map[string][]Route{
		"duplicate name": {{Name: "a", Path: "/a"}, {Name: "a", Path: "/b"}},
		"duplicate path": {{Name: "a", Path: "/a"}, {Name: "b", Path: "/a"}},
		"relative path":  {{Name: "a", Path: "a"}},
		"empty name":     {{Name: "", Path: "/a"}},
	}
	for name, routes := range cases {
		if _, err := New(routes); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMount_GuardRedirectsOverHTTP(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	r, err := New(DefaultRoutes(), WithLogger(quiet()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.BeforeEach(Guard(sessions))

	page := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, name)
		})
	}

	m := mux.NewRouter()
	m.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	if err := r.Mount(m, map[string]http.Handler{
		RouteHome:    page(RouteHome),
		RouteLogin:   page(RouteLogin),
		RouteProfile: page(RouteProfile),
	}); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/profile")
	if rr.Code != http.StatusFound {
		t.Fatalf("GET /profile status=%d want=%d", rr.Code, http.StatusFound)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Fatalf("Location=%q want=%q", loc, "/login")
	}

	if rr := get("/healthz"); rr.Code != http.StatusNoContent {
		t.Fatalf("GET /healthz status=%d", rr.Code)
	}
	if rr := get("/"); rr.Code != http.StatusOK || rr.Body.String() != RouteHome {
		t.Fatalf("GET / status=%d body=%q", rr.Code, rr.Body.String())
	}

	sessions.set(&api.Session{SessionID: "s"})
	if rr := get("/profile"); rr.Code != http.StatusOK || rr.Body.String() != RouteProfile {
		t.Fatalf("GET /profile logged in status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestMount_RejectsUnknownHandler(t *testing.T) {
	t.Parallel()

	r, _ := New(DefaultRoutes())
	err := r.Mount(mux.NewRouter(), map[string]http.Handler{"bogus": http.NotFoundHandler()})
	if !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("Mount err=%v want ErrUnknownRoute", err)
	}
}
