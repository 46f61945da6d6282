// Package metrics exposes domain and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traceledger/internal/domain"
)

const namespace = "traceledger"

// Prometheus implements domain.Metrics.
type Prometheus struct {
	registry prometheus.Gatherer

	identifiersIssued *prometheus.CounterVec
	scopeExhausted    *prometheus.CounterVec
	integrityFailures *prometheus.CounterVec
	movements         *prometheus.CounterVec
	transitions       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ domain.Metrics = (*Prometheus)(nil)

// New registers the collectors on reg. A nil reg uses a fresh registry that
// also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		identifiersIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_issued_total",
			Help:      "Identifiers issued, by kind (batch, serial).",
		}, []string{"kind"}),
		scopeExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scope_exhausted_total",
			Help:      "Allocations refused because a counter reached its bound.",
		}, []string{"purpose"}),
		integrityFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_failures_total",
			Help:      "Duplicate identifiers caught before insert. Any increase needs investigation.",
		}, []string{"kind"}),
		movements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_appended_total",
			Help:      "Ledger rows appended, by transaction type.",
		}, []string{"transaction_type"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_transitions_total",
			Help:      "Serial status transitions.",
		}, []string{"from", "to"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *Prometheus) IdentifiersIssued(kind string, n int) {
	p.identifiersIssued.WithLabelValues(kind).Add(float64(n))
}

func (p *Prometheus) ScopeExhausted(purpose string) {
	p.scopeExhausted.WithLabelValues(purpose).Inc()
}

func (p *Prometheus) IntegrityFailure(kind string) {
	p.integrityFailures.WithLabelValues(kind).Inc()
}

func (p *Prometheus) MovementsAppended(transactionType string, n int) {
	p.movements.WithLabelValues(transactionType).Add(float64(n))
}

func (p *Prometheus) StatusTransition(from, to string) {
	p.transitions.WithLabelValues(from, to).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func (p *Prometheus) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		p.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
