package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"nitroshare/cmd/internal/api"
	"nitroshare/cmd/internal/realtime"
	"nitroshare/cmd/internal/router"
)

const shutdownTimeout = 10 * time.Second

// Handler builds the local gateway: the route table mounted behind the auth
// guard, health and metrics endpoints, and the session event feed.
func (a *App) Handler() (http.Handler, error) {
	m := mux.NewRouter()

	pages := map[string]http.Handler{
		router.RouteHome:     http.HandlerFunc(a.serveHome),
		router.RouteLogin:    http.HandlerFunc(a.serveLogin),
		router.RouteRegister: http.HandlerFunc(a.serveRegister),
		router.RouteProfile:  http.HandlerFunc(a.serveProfile),
		router.RouteConfig:   http.HandlerFunc(a.serveConfig),
	}
	if err := a.router.Mount(m, pages); err != nil {
		return nil, err
	}

	m.HandleFunc("/logout", a.serveLogout).Methods(http.MethodPost)

	m.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	m.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.state.pool != nil {
			if err := PingDB(r.Context(), a.state.pool, 2*time.Second); err != nil {
				http.Error(w, "state db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	m.Handle("/metrics", a.metrics.Handler())

	gcfg := realtime.DefaultGatewayConfig()
	gcfg.AllowedOrigins = a.cfg.FeedOrigins
	gcfg.OriginRequired = a.cfg.FeedOriginRequire
	m.Handle("/events", realtime.NewGateway(a.log, a.hub, gcfg))

	return WithSecurityHeaders(WithRequestLogging(m, a.log)), nil
}

// Serve runs the local gateway until ctx is canceled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	h, err := a.Handler()
	if err != nil {
		return err
	}

	// Pages read the cached report; a failed load leaves it empty.
	a.site.Load(ctx)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"url", base,
		"events", wsBaseURL(base)+"/events",
		"api", a.api.BaseURL(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

type homeView struct {
	Site     string    `json:"site"`
	LoggedIn bool      `json:"logged_in"`
	User     *api.User `json:"user,omitempty"`
}

type loginView struct {
	LoggedIn bool   `json:"logged_in"`
	Hint     string `json:"hint"`
}

type registerView struct {
	RegistrationAllowed bool `json:"registration_allowed"`
	MinPasswordLength   int  `json:"min_password_length"`
}

func (a *App) serveHome(w http.ResponseWriter, _ *http.Request) {
	st := a.sessions.Snapshot()
	writeJSON(w, http.StatusOK, homeView{
		Site:     a.site.SiteName(defaultSiteName),
		LoggedIn: st.Session != nil,
		User:     st.User,
	})
}

func (a *App) serveLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, loginView{
		LoggedIn: a.sessions.LoggedIn(),
		Hint:     loginHint,
	})
}

func (a *App) serveRegister(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, registerView{
		RegistrationAllowed: a.site.RegistrationAllowed(),
		MinPasswordLength:   minPasswordLength,
	})
}

func (a *App) serveProfile(w http.ResponseWriter, r *http.Request) {
	u := a.sessions.UpdateUser(r.Context())
	if u == nil {
		http.Error(w, "session ended", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *App) serveConfig(w http.ResponseWriter, r *http.Request) {
	rep := a.site.Load(r.Context())
	if rep == nil {
		http.Error(w, "configuration unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *App) serveLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runtimeBaseURL turns a listen address into a URL a local browser can
// open. Wildcard hosts are replaced with the IPv4 loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) counterpart. A bare
// host:port is treated as plain http.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
