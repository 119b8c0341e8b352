package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.CountSubmission("badge")
	c.CountSubmission("badge")
	c.CountSubmission("timeout")
	c.CountLoad("ok")
	c.ObserveBackend("register", "badge", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.submissions.WithLabelValues("badge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.submissions.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.adminLoads.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.backend))
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.CountSubmission("badge")
		c.CountLoad("ok")
		c.ObserveBackend("register", "badge", time.Second)
	})
}

func TestRequestsMetricsMiddleware(t *testing.T) {
	c := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(c.RequestsMetricsMiddleware)
	r.Get("/participants/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/participants/7", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/participants/{id}", "GET", "418")))
}
