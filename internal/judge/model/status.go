package model

// CaseStatus is the state of one test case execution.
// Terminal states: passed, failed, time_limit_exceeded, memory_limit_exceeded,
// compilation_error, error.
type CaseStatus string

const (
	CaseSubmitted  CaseStatus = "submitted"
	CaseQueued     CaseStatus = "queued"
	CaseProcessing CaseStatus = "processing"

	CasePassed              CaseStatus = "passed"
	CaseFailed              CaseStatus = "failed"
	CaseTimeLimitExceeded   CaseStatus = "time_limit_exceeded"
	CaseMemoryLimitExceeded CaseStatus = "memory_limit_exceeded"
	CaseCompilationError    CaseStatus = "compilation_error"
	CaseError               CaseStatus = "error"
)

// IsTerminal reports whether the status can no longer change.
func (s CaseStatus) IsTerminal() bool {
	switch s {
	case CasePassed, CaseFailed, CaseTimeLimitExceeded, CaseMemoryLimitExceeded, CaseCompilationError, CaseError:
		return true
	case CaseSubmitted, CaseQueued, CaseProcessing:
		return false
	default:
		return false
	}
}

// SubmissionStatus is the aggregate outcome of a submission.
type SubmissionStatus string

const (
	SubmissionAccepted            SubmissionStatus = "accepted"
	SubmissionRejected            SubmissionStatus = "rejected"
	SubmissionPartiallyAccepted   SubmissionStatus = "partially_accepted"
	SubmissionCompilationError    SubmissionStatus = "compilation_error"
	SubmissionTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	SubmissionMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
	SubmissionRuntimeError        SubmissionStatus = "runtime_error"

	// SubmissionSystemError marks submissions that could not be judged because
	// of infrastructure failure. It is never produced by aggregation.
	SubmissionSystemError SubmissionStatus = "system_error"
)

// JudgeStatus represents the lifecycle state of a judge task.
type JudgeStatus string

const (
	StatusPending  JudgeStatus = "Pending"
	StatusRunning  JudgeStatus = "Running"
	StatusFinished JudgeStatus = "Finished"
	StatusFailed   JudgeStatus = "Failed"
)

// IsFinal reports whether the task reached a final state.
func (s JudgeStatus) IsFinal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Metric names a resource distribution.
type Metric string

const (
	MetricRuntime Metric = "runtime"
	MetricMemory  Metric = "memory"
)

// ParseMetric validates a metric name.
func ParseMetric(raw string) (Metric, bool) {
	switch Metric(raw) {
	case MetricRuntime:
		return MetricRuntime, true
	case MetricMemory:
		return MetricMemory, true
	default:
		return "", false
	}
}
