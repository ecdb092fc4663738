package model

// JudgeMessage represents the Kafka payload for judge tasks.
type JudgeMessage struct {
	SubmissionID  string `json:"submission_id"`
	ProblemID     int64  `json:"problem_id"`
	LanguageID    int    `json:"language_id"`
	SourceKey     string `json:"source_key"`
	SourceHash    string `json:"source_hash"`
	UserID        string `json:"user_id"`
	RoomID        string `json:"room_id,omitempty"`
	TotalPoints   int    `json:"total_points"`
	PartialCredit bool   `json:"partial_credit"`
	Priority      int    `json:"priority"`
}
