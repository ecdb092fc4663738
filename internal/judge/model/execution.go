package model

// TestCase is one problem test case in definition order.
type TestCase struct {
	ID             string `json:"id"`
	Ordinal        int    `json:"ordinal"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	// Limits are forwarded to the remote judge; zero means the judge default.
	TimeLimitMs   int64 `json:"time_limit_ms,omitempty"`
	MemoryLimitKB int64 `json:"memory_limit_kb,omitempty"`
}

// TestCaseExecution is one remote judging attempt of one test case.
type TestCaseExecution struct {
	TestCaseID     string     `json:"test_case_id"`
	Input          string     `json:"input"`
	ExpectedOutput string     `json:"expected_output"`
	ActualOutput   *string    `json:"actual_output,omitempty"`
	Stderr         string     `json:"stderr,omitempty"`
	CompileOutput  string     `json:"compile_output,omitempty"`
	TimeMs         float64    `json:"time_ms"`
	MemoryKB       int64      `json:"memory_kb"`
	Token          string     `json:"token,omitempty"`
	RemoteStatusID int        `json:"remote_status_id,omitempty"`
	Status         CaseStatus `json:"status"`
	Message        string     `json:"message,omitempty"`
}

// NewTestCaseExecution starts an execution record for tc.
func NewTestCaseExecution(tc TestCase) TestCaseExecution {
	return TestCaseExecution{
		TestCaseID:     tc.ID,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Status:         CaseSubmitted,
	}
}

// VerdictSummary is the aggregate of a resolved case list.
type VerdictSummary struct {
	Status          SubmissionStatus `json:"status"`
	Verdict         string           `json:"verdict"`
	Score           int              `json:"score"`
	PassedCount     int              `json:"passed_count"`
	TotalCount      int              `json:"total_count"`
	TotalTimeMs     float64          `json:"total_time_ms"`
	MaxMemoryKB     int64            `json:"max_memory_kb"`
	FirstFailedCase int              `json:"first_failed_case"`
}

// SubmissionVerdict is the immutable result of judging one submission.
type SubmissionVerdict struct {
	VerdictSummary
	Cases []TestCaseExecution `json:"cases"`
}
