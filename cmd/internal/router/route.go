// Package router names the client's navigation targets and runs navigation
// guards before each one is entered.
//
// The same route table drives CLI command dispatch and the local gateway,
// where it is mounted onto a gorilla/mux router.
package router

import (
	"errors"
	"fmt"

	"nitroshare/cmd/internal/api"
)

// Route names.
const (
	RouteHome     = "home"
	RouteLogin    = "login"
	RouteRegister = "register"
	RouteProfile  = "profile"
	RouteConfig   = "config"
)

// ErrUnknownRoute is returned when a route name is not registered.
var ErrUnknownRoute = errors.New("router: unknown route")

// Meta carries per-route flags read by guards.
type Meta struct {
	RequiresAuth bool
}

// Route is a named navigation target.
type Route struct {
	Name string
	Path string
	Meta Meta
}

// Redirect names the route a guard sends navigation to instead.
type Redirect struct {
	Name string
}

// BeforeEach runs before a route is entered. A nil result lets navigation
// proceed.
type BeforeEach func(to Route) *Redirect

// SessionReader exposes the in-memory session.
type SessionReader interface {
	Session() *api.Session
}

// Guard returns the authentication guard: routes that require auth redirect
// to login while no session is held. It only reads the in-memory state. It
// never contacts the backend and does not look at expiry.
func Guard(sessions SessionReader) BeforeEach {
	return func(to Route) *Redirect {
		if to.Meta.RequiresAuth && sessions.Session() == nil {
			return &Redirect{Name: RouteLogin}
		}
		return nil
	}
}

// DefaultRoutes returns the client's route table.
func DefaultRoutes() []Route {
	return []Route{
		{Name: RouteHome, Path: "/"},
		{Name: RouteLogin, Path: "/login"},
		{Name: RouteRegister, Path: "/register"},
		{Name: RouteProfile, Path: "/profile", Meta: Meta{RequiresAuth: true}},
		{Name: RouteConfig, Path: "/configuration"},
	}
}

func validateRoutes(routes []Route) error {
	seen := make(map[string]struct{}, len(routes))
	paths := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if r.Name == "" || r.Path == "" || r.Path[0] != '/' {
			return fmt.Errorf("router: invalid route %q (%q)", r.Name, r.Path)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("router: duplicate route name %q", r.Name)
		}
		if _, dup := paths[r.Path]; dup {
			return fmt.Errorf("router: duplicate route path %q", r.Path)
		}
		seen[r.Name] = struct{}{}
		paths[r.Path] = struct{}{}
	}
	return nil
}
