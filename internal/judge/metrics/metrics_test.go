package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"koodecode/internal/judge/model"
	"koodecode/internal/judge/poller"
	appErr "koodecode/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveVerdict(model.SubmissionAccepted)
	m.ObserveVerdict(model.SubmissionAccepted)
	m.ObserveVerdict(model.SubmissionRejected)
	m.ObserveFailure(appErr.JudgeUnavailable)
	m.ObserveLookup(model.MetricRuntime, "hit")

	if got := testutil.ToFloat64(m.verdicts.WithLabelValues(string(model.SubmissionAccepted))); got != 2 {
		t.Fatalf("expected 2 accepted verdicts, got %v", got)
	}
	if got := testutil.ToFloat64(m.lookups.WithLabelValues("runtime", "hit")); got != 1 {
		t.Fatalf("expected 1 lookup, got %v", got)
	}
	if got := testutil.CollectAndCount(m.failures); got != 1 {
		t.Fatalf("expected one failure series, got %d", got)
	}
}

func TestMetricsTrackAndCases(t *testing.T) {
	m := New(nil)

	done := m.Track()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}

	m.ObserveCase(context.Background(), poller.CaseReport{
		Execution: model.TestCaseExecution{Status: model.CasePassed},
		Attempts:  3,
		Elapsed:   1500 * time.Millisecond,
	})
	if got := testutil.CollectAndCount(m.caseLatency); got != 1 {
		t.Fatalf("expected one latency series, got %d", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "judge_case_poll_attempts_count 1") {
		t.Fatalf("expected poll attempts in exposition:\n%s", rec.Body.String())
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveVerdict(model.SubmissionAccepted)
	m.ObserveLookup(model.MetricMemory, "miss")
	m.ObserveCase(context.Background(), poller.CaseReport{})
	m.Track()()
}
