// Package metrics exposes Prometheus collectors for the HTTP API and the catalog.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	favoriteToggles   *prometheus.CounterVec
	membershipChanges *prometheus.CounterVec
	profileLoads      *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movies",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "movies",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		favoriteToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movies",
			Name:      "favorite_toggles_total",
			Help:      "Favorite toggles by resulting state.",
		}, []string{"state"}),
		membershipChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movies",
			Name:      "playlist_membership_changes_total",
			Help:      "Playlist membership changes by operation and outcome.",
		}, []string{"op", "outcome"}),
		profileLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movies",
			Name:      "profile_loads_total",
			Help:      "Profile loads by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.favoriteToggles,
		m.membershipChanges,
		m.profileLoads,
	)
	return m
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry to tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) FavoriteToggled(favorited bool) {
	if m == nil {
		return
	}
	state := "removed"
	if favorited {
		state = "added"
	}
	m.favoriteToggles.WithLabelValues(state).Inc()
}

func (m *Metrics) MembershipChanged(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.membershipChanges.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ProfileLoaded(outcome string) {
	if m == nil {
		return
	}
	m.profileLoads.WithLabelValues(outcome).Inc()
}
