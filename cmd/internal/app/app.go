// Package app wires the nitroshare client runtime: config, logging, state
// persistence, the session lifecycle, CLI commands and the local gateway.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nitroshare/cmd/internal/api"
	"nitroshare/cmd/internal/auth/session"
	"nitroshare/cmd/internal/metrics"
	"nitroshare/cmd/internal/persist"
	"nitroshare/cmd/internal/realtime"
	"nitroshare/cmd/internal/router"
	"nitroshare/cmd/internal/siteconfig"
)

// Persisted state keys.
const (
	keySession       = "session"
	keyConfiguration = "configuration"
)

// App is the client runtime. It owns the stores, their persistence and the
// route table shared by CLI dispatch and the gateway.
type App struct {
	cfg Config
	log Logger

	api      *api.Client
	sessions *session.Manager
	site     *siteconfig.Store
	router   *router.Router
	metrics  *metrics.Metrics
	hub      *realtime.Hub

	state        stateStore
	sessionState *persist.Binding[session.State]
	siteState    *persist.Binding[siteconfig.State]
}

// New constructs a fully wired App. Nothing is restored until Start.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("app: nil logger")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(client, session.WithLogger(log), session.WithRecorder(m))
	site := siteconfig.NewStore(client, log, m)

	rt, err := router.New(router.DefaultRoutes(),
		router.WithLogger(log),
		router.WithRedirectHook(m.GuardRedirect),
	)
	if err != nil {
		return nil, err
	}
	rt.BeforeEach(router.Guard(sessions))

	hub := realtime.NewHub(log)
	hub.Attach(sessions)

	codec, err := persist.CodecByName(cfg.State.Codec)
	if err != nil {
		return nil, err
	}

	st, err := openStateStore(ctx, cfg.State, log)
	if err != nil {
		return nil, err
	}

	sessionState, err := persist.Bind[session.State](st, codec, keySession, log)
	if err != nil {
		_ = st.close()
		return nil, err
	}
	siteState, err := persist.Bind[siteconfig.State](st, codec, keyConfiguration, log)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	return &App{
		cfg:          cfg,
		log:          log,
		api:          client,
		sessions:     sessions,
		site:         site,
		router:       rt,
		metrics:      m,
		hub:          hub,
		state:        st,
		sessionState: sessionState,
		siteState:    siteState,
	}, nil
}

// Start restores persisted state: the configuration report first, then the
// session, whose revalidation is awaited before Start returns. Guarded
// routes are therefore never entered on a session the backend already
// dropped.
//
// Unreadable persisted state is logged and startup continues logged out.
func (a *App) Start(ctx context.Context) error {
	siteSt, found, err := a.siteState.Load(ctx)
	if err != nil {
		a.log.Warn("startup.config.restore_fail", "err", err)
	} else if found {
		a.site.Restore(siteSt)
	}
	a.siteState.Attach(a.site)

	sessSt, restored, err := a.sessionState.Load(ctx)
	if err != nil {
		a.log.Warn("startup.session.restore_fail", "err", err)
		sessSt, restored = session.State{}, false
	}
	a.sessionState.Attach(a.sessions)

	u, err := a.sessions.Restore(ctx, sessSt).Wait(ctx)
	if err != nil {
		return err
	}

	attrs := []any{"restored", restored, "logged_in", u != nil}
	if u != nil {
		attrs = append(attrs, "user_id", u.ID, "username", u.Username)
	}
	a.log.Info("startup.session", attrs...)
	return nil
}

// Close releases the state backend.
func (a *App) Close() error {
	return a.state.close()
}

// Sessions returns the session store.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Site returns the configuration store.
func (a *App) Site() *siteconfig.Store { return a.site }

// Router returns the route table with the auth guard installed.
func (a *App) Router() *router.Router { return a.router }
