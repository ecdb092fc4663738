// Package verdict folds per-case results into a submission verdict.
package verdict

import (
	"fmt"
	"math"

	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

// Verdict labels.
const (
	LabelCompilationError    = "Compilation Error"
	LabelTimeLimitExceeded   = "Time Limit Exceeded"
	LabelMemoryLimitExceeded = "Memory Limit Exceeded"
	LabelRuntimeError        = "Runtime Error"
	LabelAccepted            = "Accepted"
	LabelWrongAnswer         = "Wrong Answer"
)

type options struct {
	partialCredit bool
}

// Option tunes aggregation.
type Option func(*options)

// WithPartialCredit reports partially_accepted instead of rejected when some
// but not all cases passed.
func WithPartialCredit() Option {
	return func(o *options) { o.partialCredit = true }
}

// ValidateCases rejects inputs that cannot be aggregated.
func ValidateCases(cases []model.TestCaseExecution) error {
	if len(cases) == 0 {
		return appErr.New(appErr.TestCaseNotFound).WithMessage("no test cases to aggregate")
	}
	for i, c := range cases {
		if !c.Status.IsTerminal() {
			return appErr.Newf(appErr.TestCaseInvalid, "case %d is not resolved: %s", i, c.Status)
		}
	}
	return nil
}

// CalculateResults aggregates resolved cases. It is pure: the same input
// always yields the same summary.
func CalculateResults(cases []model.TestCaseExecution, totalPoints int, opts ...Option) model.VerdictSummary {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var hasCE, hasTLE, hasMLE, hasRE bool
	var totalTime float64
	var maxMemory int64
	passed := 0
	firstFailed := -1
	for i, c := range cases {
		totalTime += c.TimeMs
		if c.MemoryKB > maxMemory {
			maxMemory = c.MemoryKB
		}
		switch c.Status {
		case model.CasePassed:
			passed++
			continue
		case model.CaseCompilationError:
			hasCE = true
		case model.CaseTimeLimitExceeded:
			hasTLE = true
		case model.CaseMemoryLimitExceeded:
			hasMLE = true
		case model.CaseError:
			hasRE = true
		case model.CaseFailed:
		default:
			// unresolved cases count as errors
			hasRE = true
		}
		if firstFailed < 0 {
			firstFailed = i
		}
	}

	total := len(cases)
	summary := model.VerdictSummary{
		PassedCount:     passed,
		TotalCount:      total,
		Score:           score(passed, total, totalPoints),
		TotalTimeMs:     totalTime,
		MaxMemoryKB:     maxMemory,
		FirstFailedCase: firstFailed,
	}

	switch {
	case hasCE:
		summary.Status, summary.Verdict = model.SubmissionCompilationError, LabelCompilationError
	case hasTLE:
		summary.Status, summary.Verdict = model.SubmissionTimeLimitExceeded, LabelTimeLimitExceeded
	case hasMLE:
		summary.Status, summary.Verdict = model.SubmissionMemoryLimitExceeded, LabelMemoryLimitExceeded
	case hasRE:
		summary.Status, summary.Verdict = model.SubmissionRuntimeError, LabelRuntimeError
	case total > 0 && passed == total:
		summary.Status, summary.Verdict = model.SubmissionAccepted, LabelAccepted
	case o.partialCredit && passed > 0:
		summary.Status = model.SubmissionPartiallyAccepted
		summary.Verdict = fmt.Sprintf("Partially Accepted (%d/%d)", passed, total)
	default:
		summary.Status, summary.Verdict = model.SubmissionRejected, LabelWrongAnswer
	}
	return summary
}

// Build returns a verdict owning a copy of cases.
func Build(cases []model.TestCaseExecution, totalPoints int, opts ...Option) model.SubmissionVerdict {
	owned := make([]model.TestCaseExecution, len(cases))
	copy(owned, cases)
	return model.SubmissionVerdict{
		VerdictSummary: CalculateResults(owned, totalPoints, opts...),
		Cases:          owned,
	}
}

func score(passed, total, totalPoints int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(passed) / float64(total) * float64(totalPoints)))
}
