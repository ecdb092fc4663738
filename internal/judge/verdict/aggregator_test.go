package verdict

import (
	"reflect"
	"testing"

	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

func cases(statuses ...model.CaseStatus) []model.TestCaseExecution {
	out := make([]model.TestCaseExecution, len(statuses))
	for i, s := range statuses {
		out[i] = model.TestCaseExecution{TestCaseID: string(rune('a' + i)), Status: s, TimeMs: 10, MemoryKB: int64(100 * (i + 1))}
	}
	return out
}

func TestCalculateResultsPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		cases       []model.TestCaseExecution
		opts        []Option
		wantStatus  model.SubmissionStatus
		wantVerdict string
	}{
		{
			name:        "compilation error beats passes",
			cases:       cases(model.CasePassed, model.CaseCompilationError, model.CasePassed),
			wantStatus:  model.SubmissionCompilationError,
			wantVerdict: LabelCompilationError,
		},
		{
			name:        "compilation error beats time limit",
			cases:       cases(model.CaseTimeLimitExceeded, model.CaseCompilationError),
			wantStatus:  model.SubmissionCompilationError,
			wantVerdict: LabelCompilationError,
		},
		{
			name:        "time limit beats memory limit",
			cases:       cases(model.CaseMemoryLimitExceeded, model.CaseTimeLimitExceeded),
			wantStatus:  model.SubmissionTimeLimitExceeded,
			wantVerdict: LabelTimeLimitExceeded,
		},
		{
			name:        "memory limit beats runtime error",
			cases:       cases(model.CaseError, model.CaseMemoryLimitExceeded),
			wantStatus:  model.SubmissionMemoryLimitExceeded,
			wantVerdict: LabelMemoryLimitExceeded,
		},
		{
			name:        "runtime error beats wrong answer",
			cases:       cases(model.CaseFailed, model.CaseError),
			wantStatus:  model.SubmissionRuntimeError,
			wantVerdict: LabelRuntimeError,
		},
		{
			name:        "all passed",
			cases:       cases(model.CasePassed, model.CasePassed),
			wantStatus:  model.SubmissionAccepted,
			wantVerdict: LabelAccepted,
		},
		{
			name:        "wrong answer",
			cases:       cases(model.CasePassed, model.CaseFailed),
			wantStatus:  model.SubmissionRejected,
			wantVerdict: LabelWrongAnswer,
		},
		{
			name:        "partial credit",
			cases:       cases(model.CasePassed, model.CaseFailed, model.CasePassed),
			opts:        []Option{WithPartialCredit()},
			wantStatus:  model.SubmissionPartiallyAccepted,
			wantVerdict: "Partially Accepted (2/3)",
		},
		{
			name:        "partial credit with nothing passed",
			cases:       cases(model.CaseFailed, model.CaseFailed),
			opts:        []Option{WithPartialCredit()},
			wantStatus:  model.SubmissionRejected,
			wantVerdict: LabelWrongAnswer,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateResults(tt.cases, 100, tt.opts...)
			if got.Status != tt.wantStatus || got.Verdict != tt.wantVerdict {
				t.Fatalf("got %s/%q, want %s/%q", got.Status, got.Verdict, tt.wantStatus, tt.wantVerdict)
			}
		})
	}
}

func TestCalculateResultsScoreAndTotals(t *testing.T) {
	t.Parallel()
	in := cases(model.CasePassed, model.CasePassed, model.CaseFailed, model.CasePassed)
	in[1].TimeMs = 25.5
	in[3].MemoryKB = 50

	got := CalculateResults(in, 100)
	if got.Score != 75 {
		t.Fatalf("score=%d, want 75", got.Score)
	}
	if got.PassedCount != 3 || got.TotalCount != 4 {
		t.Fatalf("counts=%d/%d", got.PassedCount, got.TotalCount)
	}
	if got.TotalTimeMs != 55.5 {
		t.Fatalf("total time=%v", got.TotalTimeMs)
	}
	if got.MaxMemoryKB != 300 {
		t.Fatalf("max memory=%d", got.MaxMemoryKB)
	}
	if got.FirstFailedCase != 2 {
		t.Fatalf("first failed=%d", got.FirstFailedCase)
	}
}

func TestCalculateResultsRoundsScore(t *testing.T) {
	t.Parallel()
	got := CalculateResults(cases(model.CasePassed, model.CaseFailed, model.CaseFailed), 100)
	if got.Score != 33 {
		t.Fatalf("score=%d, want 33", got.Score)
	}
	got = CalculateResults(cases(model.CasePassed, model.CasePassed, model.CaseFailed), 100)
	if got.Score != 67 {
		t.Fatalf("score=%d, want 67", got.Score)
	}
}

func TestCalculateResultsIsIdempotent(t *testing.T) {
	t.Parallel()
	in := cases(model.CasePassed, model.CaseTimeLimitExceeded, model.CaseFailed)
	first := CalculateResults(in, 60, WithPartialCredit())
	second := CalculateResults(in, 60, WithPartialCredit())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
}

func TestCalculateResultsEmpty(t *testing.T) {
	t.Parallel()
	got := CalculateResults(nil, 100)
	if got.MaxMemoryKB != 0 || got.TotalTimeMs != 0 || got.Score != 0 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got.FirstFailedCase != -1 {
		t.Fatalf("first failed=%d", got.FirstFailedCase)
	}
}

func TestValidateCases(t *testing.T) {
	t.Parallel()
	if err := ValidateCases(nil); !appErr.Is(err, appErr.TestCaseNotFound) {
		t.Fatalf("empty list: got %v", err)
	}
	if err := ValidateCases(cases(model.CasePassed, model.CaseProcessing)); !appErr.Is(err, appErr.TestCaseInvalid) {
		t.Fatalf("unresolved case: got %v", err)
	}
	if err := ValidateCases(cases(model.CasePassed, model.CaseError)); err != nil {
		t.Fatalf("valid cases: %v", err)
	}
}

func TestBuildCopiesCases(t *testing.T) {
	t.Parallel()
	in := cases(model.CasePassed)
	v := Build(in, 10)
	in[0].Status = model.CaseFailed
	if v.Cases[0].Status != model.CasePassed {
		t.Fatalf("verdict shares caller slice")
	}
	if v.Status != model.SubmissionAccepted || v.Score != 10 {
		t.Fatalf("unexpected verdict %+v", v.VerdictSummary)
	}
}
