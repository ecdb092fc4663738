package model

// StatusEventType represents the status event type.
type StatusEventType string

const (
	// StatusEventFinal indicates the final status event.
	StatusEventFinal StatusEventType = "final"
)

// StatusEvent carries the final status to the submission service.
type StatusEvent struct {
	EventID   string              `json:"event_id"`
	Type      StatusEventType     `json:"type"`
	Status    JudgeStatusResponse `json:"status"`
	CreatedAt int64               `json:"created_at"`
}

// RoomEvent is broadcast to a collaborative room when a member's submission finishes.
type RoomEvent struct {
	EventID      string           `json:"event_id"`
	RoomID       string           `json:"room_id"`
	SubmissionID string           `json:"submission_id"`
	UserID       string           `json:"user_id"`
	ProblemID    int64            `json:"problem_id"`
	Result       SubmissionStatus `json:"result"`
	Verdict      string           `json:"verdict"`
	Score        int              `json:"score"`
	PassedCount  int              `json:"passed_count"`
	TotalCount   int              `json:"total_count"`
	CreatedAt    int64            `json:"created_at"`
}

// StatsEvent feeds per-problem and per-user statistics.
type StatsEvent struct {
	EventID      string           `json:"event_id"`
	SubmissionID string           `json:"submission_id"`
	UserID       string           `json:"user_id"`
	ProblemID    int64            `json:"problem_id"`
	Result       SubmissionStatus `json:"result"`
	Accepted     bool             `json:"accepted"`
	TotalTimeMs  float64          `json:"total_time_ms"`
	MaxMemoryKB  int64            `json:"max_memory_kb"`
	Percentiles  *Percentiles     `json:"percentiles,omitempty"`
	CreatedAt    int64            `json:"created_at"`
}
