// Package metrics exposes chat activity in the Prometheus exposition format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webchat/internal/domain"
)

const namespace = "webchat"

// Collector records session and turn metrics on its own registry.
// It implements usecase.TurnObserver.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	turnsTotal     *prometheus.CounterVec
	turnErrors     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	replyChars     prometheus.Histogram
	rpcTotal       *prometheus.CounterVec
}

// New creates a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open chat sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total chat sessions opened.",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by model and outcome.",
		}, []string{"model", "outcome"}),
		turnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Failed chat turns by error category.",
		}, []string{"category"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from request to last fragment of successful turns.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"model"}),
		replyChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_chars",
			Help:      "Length of completed replies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 7),
		}),
		rpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Gateway RPC requests by method and result code.",
		}, []string{"method", "code"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessionsActive,
		c.sessionsTotal,
		c.turnsTotal,
		c.turnErrors,
		c.turnDuration,
		c.replyChars,
		c.rpcTotal,
	)
	return c
}

// SessionOpened records a new session.
func (c *Collector) SessionOpened() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed records a session ending.
func (c *Collector) SessionClosed() { c.sessionsActive.Dec() }

// TurnCompleted records a successful turn.
func (c *Collector) TurnCompleted(model string, d time.Duration, chars int) {
	c.turnsTotal.WithLabelValues(model, "ok").Inc()
	c.turnDuration.WithLabelValues(model).Observe(d.Seconds())
	c.replyChars.Observe(float64(chars))
}

// TurnFailed records a failed turn.
func (c *Collector) TurnFailed(model string, category domain.ErrorCategory) {
	c.turnsTotal.WithLabelValues(model, "error").Inc()
	c.turnErrors.WithLabelValues(string(category)).Inc()
}

// RPC records one gateway request. A nil err is recorded as "OK".
func (c *Collector) RPC(method string, err error) {
	code := "OK"
	if err != nil {
		code = string(domain.ErrorCodeOf(err))
	}
	c.rpcTotal.WithLabelValues(method, code).Inc()
}

// WatchBreaker exports the upstream circuit breaker state as a gauge
// (0 closed, 1 half-open, 2 open), read at scrape time.
func (c *Collector) WatchBreaker(state func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "llm_breaker_state",
		Help:      "Upstream circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, func() float64 { return float64(state()) }))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
