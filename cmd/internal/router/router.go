package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// Navigation is the result of Navigate.
type Navigation struct {
	// To is the route that was entered.
	To Route

	// RedirectedFrom names the requested route when a guard redirected.
	RedirectedFrom string
}

// Redirected reports whether a guard changed the destination.
func (n Navigation) Redirected() bool { return n.RedirectedFrom != "" }

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for guard redirects.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRedirectHook registers fn to observe every guard redirect.
func WithRedirectHook(fn func(from, to string)) Option {
	return func(r *Router) {
		if fn != nil {
			r.onRedirect = fn
		}
	}
}

// Router resolves route names and runs guards before navigation.
type Router struct {
	routes []Route
	byName map[string]Route

	log        *slog.Logger
	onRedirect func(from, to string)

	mu     sync.RWMutex
	guards []BeforeEach
}

// New builds a Router over routes. Names and paths must be unique.
func New(routes []Route, opts ...Option) (*Router, error) {
	if err := validateRoutes(routes); err != nil {
		return nil, err
	}

	r := &Router{
		routes:     append([]Route(nil), routes...),
		byName:     make(map[string]Route, len(routes)),
		log:        slog.Default(),
		onRedirect: func(string, string) {},
	}
	for _, rt := range routes {
		r.byName[rt.Name] = rt
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r, nil
}

// BeforeEach registers a guard. Guards run in registration order and the
// first redirect wins.
func (r *Router) BeforeEach(g BeforeEach) {
	if g == nil {
		return
	}
	r.mu.Lock()
	r.guards = append(r.guards, g)
	r.mu.Unlock()
}

// Routes returns the route table in registration order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Resolve looks a route up by name.
func (r *Router) Resolve(name string) (Route, error) {
	rt, ok := r.byName[name]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return rt, nil
}

// Navigate runs the guards for the named route and returns where navigation
// ends up. A redirect is followed once; the redirect target is not guarded
// again.
func (r *Router) Navigate(name string) (Navigation, error) {
	to, err := r.Resolve(name)
	if err != nil {
		return Navigation{}, err
	}

	red := r.check(to)
	if red == nil {
		return Navigation{To: to}, nil
	}

	target, err := r.Resolve(red.Name)
	if err != nil {
		return Navigation{}, fmt.Errorf("router: guard redirect from %q: %w", to.Name, err)
	}
	return Navigation{To: target, RedirectedFrom: to.Name}, nil
}

// Mount registers every route that has a handler on m, named after the
// route, and installs the guards as middleware. A redirected request is
// answered with 302 Found pointing at the target route's URL.
func (r *Router) Mount(m *mux.Router, handlers map[string]http.Handler) error {
	for name := range handlers {
		if _, ok := r.byName[name]; !ok {
			return fmt.Errorf("%w: handler for %q", ErrUnknownRoute, name)
		}
	}
	for _, rt := range r.routes {
		h, ok := handlers[rt.Name]
		if !ok {
			continue
		}
		m.Handle(rt.Path, h).Methods(http.MethodGet, http.MethodHead).Name(rt.Name)
	}

	m.Use(r.middleware(m))
	return nil
}

func (r *Router) middleware(m *mux.Router) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			cur := mux.CurrentRoute(req)
			if cur == nil {
				next.ServeHTTP(w, req)
				return
			}
			to, ok := r.byName[cur.GetName()]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}

			red := r.check(to)
			if red == nil {
				next.ServeHTTP(w, req)
				return
			}

			target := m.Get(red.Name)
			if target == nil {
				http.Error(w, "redirect target not mounted", http.StatusInternalServerError)
				return
			}
			u, err := target.URL()
			if err != nil {
				http.Error(w, "redirect target not mounted", http.StatusInternalServerError)
				return
			}
			http.Redirect(w, req, u.String(), http.StatusFound)
		})
	}
}

func (r *Router) check(to Route) *Redirect {
	r.mu.RLock()
	guards := append([]BeforeEach(nil), r.guards...)
	r.mu.RUnlock()

	for _, g := range guards {
		if red := g(to); red != nil {
			r.log.Info("router.guard.redirect", "from", to.Name, "to", red.Name)
			r.onRedirect(to.Name, red.Name)
			return red
		}
	}
	return nil
}
