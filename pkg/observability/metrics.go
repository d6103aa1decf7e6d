package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	ResolutionsTotal    *prometheus.CounterVec
	AuthzDecisionsTotal *prometheus.CounterVec
	ResolutionDuration  prometheus.Histogram

	// Conversation metrics
	TransitionsTotal         *prometheus.CounterVec
	ConcurrentConflictsTotal prometheus.Counter
	InvariantViolationsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheErrorsTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Event metrics
	EventsPublishedTotal *prometheus.CounterVec
	WebsocketClients     prometheus.Gauge

	// Sweep metrics
	InvitationsExpiredTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_context_resolutions_total",
				Help: "Tenant context resolutions by outcome",
			},
			[]string{"outcome"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_authz_decisions_total",
				Help: "Role authorization decisions by matching rule",
			},
			[]string{"rule", "allowed"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantdesk_context_resolution_duration_seconds",
				Help:    "Time spent resolving tenant context",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_conversation_transitions_total",
				Help: "Conversation status transitions",
			},
			[]string{"from", "to", "result"},
		),
		ConcurrentConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantdesk_conversation_conflicts_total",
				Help: "Conditional updates that lost a race",
			},
		),
		InvariantViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_conversation_invariant_violations_total",
				Help: "Detected conversation assignment/status inconsistencies",
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_cache_hits_total",
				Help: "Authority cache hits",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_cache_misses_total",
				Help: "Authority cache misses",
			},
			[]string{"kind"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_cache_errors_total",
				Help: "Absorbed authority cache failures",
			},
			[]string{"op"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_cache_invalidations_total",
				Help: "Authority cache keys invalidated by writes",
			},
			[]string{"kind"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_events_published_total",
				Help: "Realtime events published",
			},
			[]string{"kind", "result"},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantdesk_websocket_clients",
				Help: "Connected websocket subscribers",
			},
		),
		InvitationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantdesk_invitations_expired_total",
				Help: "Invited memberships removed by the sweep",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantdesk_rate_limited_total",
				Help: "Requests rejected or passed open by rate limiters",
			},
			[]string{"limiter", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolutionsTotal,
		m.AuthzDecisionsTotal,
		m.ResolutionDuration,
		m.TransitionsTotal,
		m.ConcurrentConflictsTotal,
		m.InvariantViolationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.CacheInvalidationsTotal,
		m.EventsPublishedTotal,
		m.WebsocketClients,
		m.InvitationsExpiredTotal,
		m.RateLimitedTotal,
	)

	return m
}

// NewTestMetrics returns metrics registered against a private registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled with their mux template so ids never reach a label.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler exposes registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
