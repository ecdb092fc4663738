package metrics

import (
	"context"
	"net/http"
	"strconv"

	"koodecode/internal/judge/model"
	"koodecode/internal/judge/poller"
	appErr "koodecode/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "judge"

var (
	// 10ms -> 60s
	caseLatencyBuckets = []float64{
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10, 20, 30, 60,
	}

	pollAttemptBuckets = prometheus.LinearBuckets(1, 2, 10)
)

// Metrics collects judge pipeline metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	verdicts     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	caseLatency  *prometheus.HistogramVec
	pollAttempts prometheus.Histogram
	lookups      *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// New registers the judge metrics on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Number of judged submissions by result",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Number of submissions that could not be judged by error code",
		}, []string{"code"}),
		caseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Histogram for the wall time of one remote test case run",
			Buckets:   caseLatencyBuckets,
		}, []string{"status"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_poll_attempts",
			Help:      "Histogram for the number of polls issued per test case",
			Buckets:   pollAttemptBuckets,
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_lookups_total",
			Help:      "Number of distribution snapshot lookups by outcome",
		}, []string{"metric", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "submissions_in_flight",
			Help:      "Number of submissions currently being judged",
		}),
	}
	reg.MustRegister(m.verdicts, m.failures, m.caseLatency, m.pollAttempts, m.lookups, m.inFlight)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCase is a poller.Observer.
func (m *Metrics) ObserveCase(_ context.Context, report poller.CaseReport) {
	if m == nil {
		return
	}
	m.caseLatency.WithLabelValues(string(report.Execution.Status)).Observe(report.Elapsed.Seconds())
	if report.Attempts > 0 {
		m.pollAttempts.Observe(float64(report.Attempts))
	}
}

// ObserveLookup matches distribution.Config.OnLookup.
func (m *Metrics) ObserveLookup(metric model.Metric, outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(string(metric), outcome).Inc()
}

func (m *Metrics) ObserveVerdict(result model.SubmissionStatus) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(string(result)).Inc()
}

func (m *Metrics) ObserveFailure(code appErr.ErrorCode) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// Track counts a submission as in flight until the returned func is called.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
