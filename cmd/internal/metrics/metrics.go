// Package metrics exposes client lifecycle counters in Prometheus format.
//
// Metrics implements the recorder interfaces of the session and siteconfig
// packages so those packages stay free of the Prometheus dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nitroshare"

// Metrics holds the registered collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	revalidations  *prometheus.CounterVec
	logouts        *prometheus.CounterVec
	configLoads    *prometheus.CounterVec
	guardRedirects *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg gets a fresh private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "revalidations_total",
			Help:      "Session revalidations by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Logouts by whether the backend acknowledged them.",
		}, []string{"remote"}),
		configLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "loads_total",
			Help:      "Configuration loads by result.",
		}, []string{"result"}),
		guardRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "guard_redirects_total",
			Help:      "Navigations redirected by the auth guard, by original route.",
		}, []string{"route", "target"}),
	}

	for _, c := range []prometheus.Collector{m.revalidations, m.logouts, m.configLoads, m.guardRedirects} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Revalidation records one UpdateUser outcome.
func (m *Metrics) Revalidation(outcome string) {
	m.revalidations.WithLabelValues(outcome).Inc()
}

// Logout records one logout; ok reports whether the backend call succeeded.
func (m *Metrics) Logout(ok bool) {
	m.logouts.WithLabelValues(okLabel(ok, "ok", "failed")).Inc()
}

// ConfigLoad records one configuration fetch.
func (m *Metrics) ConfigLoad(ok bool) {
	m.configLoads.WithLabelValues(okLabel(ok, "ok", "failed")).Inc()
}

// GuardRedirect records a guard redirect from route to target.
func (m *Metrics) GuardRedirect(route, target string) {
	m.guardRedirects.WithLabelValues(route, target).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func okLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
