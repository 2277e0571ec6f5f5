package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

const namespace = "gatechain"

// Collector records gatechain counters on its own registry
type Collector struct {
	registry *prometheus.Registry

	sessionsCreated *prometheus.CounterVec
	sessionsCleared *prometheus.CounterVec
	runsPruned      prometheus.Counter
	gateOutcomes    *prometheus.CounterVec
	verifyRuns      *prometheus.CounterVec
	verifyDuration  prometheus.Histogram
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ output.Metrics = (*Collector)(nil)

// NewCollector creates a collector. withRuntime adds the Go and process collectors.
func NewCollector(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		sessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created, by chain kind (chain or review)",
		}, []string{"kind"}),
		sessionsCleared: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "cleared_total",
			Help:      "Sessions removed, by reason",
		}, []string{"reason"}),
		runsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "runs_pruned_total",
			Help:      "Runs dropped from run history",
		}),
		gateOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "outcomes_total",
			Help:      "Gate review outcomes, by status and enforcement mode",
		}, []string{"status", "mode"}),
		verifyRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "runs_total",
			Help:      "Verification command runs, by result",
		}, []string{"result"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "duration_seconds",
			Help:      "Verification command duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Handled requests, by kind and status",
		}, []string{"kind", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) SessionCreated(chainID string) {
	kind := "chain"
	if chain.IsReviewChain(chainID) {
		kind = "review"
	}
	c.sessionsCreated.WithLabelValues(kind).Inc()
}

func (c *Collector) SessionsCleared(reason string, n int) {
	if n <= 0 {
		return
	}
	c.sessionsCleared.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) RunsPruned(n int) {
	if n > 0 {
		c.runsPruned.Add(float64(n))
	}
}

func (c *Collector) GateOutcome(status, mode string) {
	c.gateOutcomes.WithLabelValues(status, mode).Inc()
}

func (c *Collector) VerifyRun(passed, timedOut bool, d time.Duration) {
	result := "fail"
	switch {
	case timedOut:
		result = "timeout"
	case passed:
		result = "pass"
	}
	c.verifyRuns.WithLabelValues(result).Inc()
	c.verifyDuration.Observe(d.Seconds())
}

func (c *Collector) RequestHandled(kind, status string, d time.Duration) {
	c.requests.WithLabelValues(kind, status).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(d.Seconds())
}
