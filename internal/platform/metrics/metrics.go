// Package metrics exposes Prometheus instrumentation for upstream fetches, caching and scan stages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mdusecase "stock_scanner/internal/feature/marketdata/usecase"
	scanusecase "stock_scanner/internal/feature/scanner/usecase"
)

const namespace = "scanner"

// Registry holds every collector of the process on its own prometheus.Registry.
// All methods are safe on a nil *Registry.
type Registry struct {
	reg *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastResults   prometheus.Gauge
	httpRequests  *prometheus.CounterVec
}

var (
	_ mdusecase.FetchRecorder = (*Registry)(nil)
	_ scanusecase.Recorder    = (*Registry)(nil)
)

// NewRegistry creates and registers all scanner metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_fetch_total",
				Help:      "Upstream requests by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_fetch_duration_seconds",
				Help:      "Upstream request latency by source",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"source"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Expert result cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		lastResults: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_result_count",
				Help:      "Number of results produced by the most recent full scan",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
	r.reg.MustRegister(
		r.fetches,
		r.fetchDuration,
		r.cache,
		r.stageDuration,
		r.lastResults,
		r.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveFetch records one upstream request.
func (r *Registry) ObserveFetch(source, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(source, outcome).Inc()
	r.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (r *Registry) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveCache records one cache lookup outcome.
func (r *Registry) ObserveCache(outcome string) {
	if r == nil {
		return
	}
	r.cache.WithLabelValues(outcome).Inc()
}

// SetLastResultCount sets the result count gauge.
func (r *Registry) SetLastResultCount(n int) {
	if r == nil {
		return
	}
	r.lastResults.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// GinMiddleware counts requests by matched route template.
func (r *Registry) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if r == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
