package rwportal

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors the portal updates.
type Metrics struct {
	APIRequests      *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
	SessionEvents    *prometheus.CounterVec
	StaleResponses   *prometheus.CounterVec
	ProfileCacheHits *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwportal_api_requests_total",
				Help: "Total number of calls made to the RW API",
			},
			[]string{"method", "endpoint", "outcome"},
		),
		APILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rwportal_api_request_duration_seconds",
				Help:    "RW API call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		SessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwportal_session_events_total",
				Help: "Session lifecycle events",
			},
			[]string{"event"},
		),
		StaleResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwportal_stale_list_responses_total",
				Help: "List responses dropped because a newer request superseded them",
			},
			[]string{"view"},
		),
		ProfileCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwportal_profile_cache_total",
				Help: "Profile cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// MetricsHandler returns an HTTP handler for a specific registry
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeAPI(method, path, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	endpoint := endpointLabel(path)
	m.APIRequests.WithLabelValues(method, endpoint, outcome).Inc()
	m.APILatency.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) sessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) staleResponse(view string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(view).Inc()
}

func (m *Metrics) profileCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ProfileCacheHits.WithLabelValues(result).Inc()
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F-]{32,36})$`)

// endpointLabel collapses record ids so label cardinality stays bounded.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
