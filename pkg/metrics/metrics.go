package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maraton"

// Collector holds every metric the service exports. A nil *Collector is
// valid and records nothing.
type Collector struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	backend     *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	adminLoads  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Handled HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of handled HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of calls to the registration backend.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 90},
		}, []string{"endpoint", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_submissions_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		adminLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_list_loads_total",
			Help:      "Participant list loads by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.requests, c.duration, c.backend, c.submissions, c.adminLoads)
	return c
}

func (c *Collector) ObserveBackend(endpoint, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.backend.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

func (c *Collector) CountSubmission(outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) CountLoad(outcome string) {
	if c == nil {
		return
	}
	c.adminLoads.WithLabelValues(outcome).Inc()
}

// RequestsMetricsMiddleware records count and latency per chi route pattern.
func (c *Collector) RequestsMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
