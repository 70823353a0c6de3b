package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	c := Noop()
	require.NotNil(t, c)
	c.ObserveRequest("GET", "/", 200, time.Millisecond)
	c.AddInFlight(1)
	c.ObserveHandleWait(time.Millisecond)
	c.IncRateLimited()
}

func TestPrometheusCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.ObserveRequest("GET", "/entities/:id", 200, 3*time.Millisecond)
	c.ObserveRequest("GET", "/entities/:id", 200, 3*time.Millisecond)
	c.ObserveRequest("GET", "", 404, time.Millisecond)
	c.AddInFlight(1)
	c.AddInFlight(1)
	c.AddInFlight(-1)
	c.IncRateLimited()
	c.ObserveHandleWait(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "/entities/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", UnmatchedRoute, "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited))
	assert.Equal(t, 1, testutil.CollectAndCount(c.handleWait))
}

func TestPrometheusCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	assert.Same(t, first.requests, again.requests)
}

func TestHandlerServesMetrics(t *testing.T) {
	c, err := NewPrometheusCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	c.IncRateLimited()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskapi_http_rate_limited_total 1")
}
