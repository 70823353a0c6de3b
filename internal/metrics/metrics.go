// Package metrics exposes the request pipeline's behavior to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskapi"

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

// Collector receives pipeline events. Implementations are called inline on
// the request path and must be cheap.
type Collector interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	AddInFlight(delta int)
	ObserveHandleWait(wait time.Duration)
	IncRateLimited()
}

type noopCollector struct{}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObserveRequest(string, string, int, time.Duration) {}
func (noopCollector) AddInFlight(int)                                   {}
func (noopCollector) ObserveHandleWait(time.Duration)                   {}
func (noopCollector) IncRateLimited()                                   {}

// PrometheusCollector records pipeline events as Prometheus metrics.
type PrometheusCollector struct {
	gatherer prometheus.Gatherer

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	handleWait  prometheus.Histogram
	rateLimited prometheus.Counter
}

// NewPrometheusCollector registers the pipeline metrics plus the Go and
// process collectors on reg. Metrics already registered on reg are reused.
func NewPrometheusCollector(reg *prometheus.Registry) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	var err error
	p := &PrometheusCollector{gatherer: reg}

	if p.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Requests dispatched by the router, by method, route pattern and status.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	if p.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Time spent in the router per request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}

	if p.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Requests holding a concurrency slot.",
	})); err != nil {
		return nil, err
	}

	if p.handleWait, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_handle_wait_seconds",
		Help:      "Time requests waited for the shared database handle.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})); err != nil {
		return nil, err
	}

	if p.rateLimited, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})); err != nil {
		return nil, err
	}

	if _, err = register(reg, collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if _, err = register(reg, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	return p, nil
}

// register registers c, or returns the collector registered before it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRequest matches pipeline.Observer.
func (p *PrometheusCollector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = UnmatchedRoute
	}
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AddInFlight matches pipeline.InFlightObserver.
func (p *PrometheusCollector) AddInFlight(delta int) {
	p.inFlight.Add(float64(delta))
}

func (p *PrometheusCollector) ObserveHandleWait(wait time.Duration) {
	p.handleWait.Observe(wait.Seconds())
}

func (p *PrometheusCollector) IncRateLimited() {
	p.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
