package model

// JudgeStatusResponse is the live status of a submission, returned to API clients.
type JudgeStatusResponse struct {
	SubmissionID string              `json:"submission_id"`
	ProblemID    int64               `json:"problem_id,omitempty"`
	UserID       string              `json:"user_id,omitempty"`
	RoomID       string              `json:"room_id,omitempty"`
	Status       JudgeStatus         `json:"status"`
	Verdict      string              `json:"verdict,omitempty"`
	Result       SubmissionStatus    `json:"result,omitempty"`
	Score        int                 `json:"score"`
	Summary      *VerdictSummary     `json:"summary,omitempty"`
	Cases        []TestCaseExecution `json:"cases,omitempty"`
	Percentiles  *Percentiles        `json:"percentiles,omitempty"`
	Timestamps   Timestamps          `json:"timestamps"`
	Progress     Progress            `json:"progress"`
	ErrorCode    int                 `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Progress represents judge progress.
type Progress struct {
	TotalTests int `json:"total_tests"`
	DoneTests  int `json:"done_tests"`
}

// Timestamps are unix seconds.
type Timestamps struct {
	ReceivedAt int64 `json:"received_at"`
	FinishedAt int64 `json:"finished_at,omitempty"`
}

// Percentiles holds "beats X%" figures. A nil field means the distribution
// was unavailable.
type Percentiles struct {
	Runtime *float64 `json:"runtime,omitempty"`
	Memory  *float64 `json:"memory,omitempty"`
}

// VerdictSystemError is the label shown when a submission could not be judged.
const VerdictSystemError = "System Error"
