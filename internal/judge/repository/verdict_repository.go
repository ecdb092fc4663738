package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"koodecode/internal/common/db"
	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

const (
	upsertVerdictSQL = `INSERT INTO judge_verdicts (
	submission_id, problem_id, user_id, room_id, language_id,
	result, verdict, score, passed_count, total_count,
	total_time_ms, max_memory_kb, first_failed_case, cases, percentiles,
	received_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	result = VALUES(result), verdict = VALUES(verdict), score = VALUES(score),
	passed_count = VALUES(passed_count), total_count = VALUES(total_count),
	total_time_ms = VALUES(total_time_ms), max_memory_kb = VALUES(max_memory_kb),
	first_failed_case = VALUES(first_failed_case), cases = VALUES(cases),
	percentiles = VALUES(percentiles), finished_at = VALUES(finished_at)`

	upsertProblemStatsSQL = `INSERT INTO problem_stats (problem_id, submissions, accepted)
VALUES (?, 1, ?)
ON DUPLICATE KEY UPDATE submissions = submissions + 1, accepted = accepted + VALUES(accepted)`

	selectVerdictSQL = `SELECT submission_id, problem_id, user_id, room_id,
	result, verdict, score, passed_count, total_count,
	total_time_ms, max_memory_kb, first_failed_case, cases, percentiles,
	received_at, finished_at
FROM judge_verdicts WHERE submission_id = ?`

	selectProblemStatsSQL = `SELECT submissions, accepted FROM problem_stats WHERE problem_id = ?`
)

// VerdictRecord is a judged submission ready to persist.
type VerdictRecord struct {
	SubmissionID string
	ProblemID    int64
	UserID       string
	RoomID       string
	LanguageID   int
	Verdict      model.SubmissionVerdict
	Percentiles  *model.Percentiles
	ReceivedAt   time.Time
	FinishedAt   time.Time
}

// AcceptanceStats holds per-problem acceptance counters.
type AcceptanceStats struct {
	ProblemID   int64   `json:"problem_id"`
	Submissions int64   `json:"submissions"`
	Accepted    int64   `json:"accepted"`
	Rate        float64 `json:"rate"`
}

// VerdictRepository persists verdicts in MySQL.
type VerdictRepository struct {
	db db.Database
}

// NewVerdictRepository creates a new repository.
func NewVerdictRepository(database db.Database) *VerdictRepository {
	return &VerdictRepository{db: database}
}

// Save upserts the verdict. Problem counters are bumped only on the first
// insert of a submission, so redelivered tasks are not counted twice.
func (r *VerdictRepository) Save(ctx context.Context, rec VerdictRecord) error {
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if rec.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	blob, err := encodeCases(rec.Verdict.Cases)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "encode cases failed")
	}
	var percentiles []byte
	if rec.Percentiles != nil {
		if percentiles, err = json.Marshal(rec.Percentiles); err != nil {
			return fmt.Errorf("marshal percentiles failed: %w", err)
		}
	}
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	v := rec.Verdict.VerdictSummary

	err = r.db.Transaction(ctx, func(tx db.Transaction) error {
		res, err := tx.Exec(ctx, upsertVerdictSQL,
			rec.SubmissionID, rec.ProblemID, rec.UserID, rec.RoomID, rec.LanguageID,
			string(v.Status), v.Verdict, v.Score, v.PassedCount, v.TotalCount,
			v.TotalTimeMs, v.MaxMemoryKB, v.FirstFailedCase, blob, percentiles,
			unixOrZero(rec.ReceivedAt), finishedAt.Unix(),
		)
		if err != nil {
			return err
		}
		// MySQL reports 1 for an insert and 2 for an update.
		if affected, err := res.RowsAffected(); err != nil || affected != 1 {
			return err
		}
		accepted := 0
		if v.Status == model.SubmissionAccepted {
			accepted = 1
		}
		_, err = tx.Exec(ctx, upsertProblemStatsSQL, rec.ProblemID, accepted)
		return err
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save verdict failed")
	}
	return nil
}

// GetFinalStatus rebuilds the final status of a judged submission.
func (r *VerdictRepository) GetFinalStatus(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if submissionID == "" {
		return model.JudgeStatusResponse{}, appErr.ValidationError("submission_id", "required")
	}
	var resp model.JudgeStatusResponse
	var summary model.VerdictSummary
	var result string
	var blob, percentiles []byte
	var receivedAt, finishedAt int64
	err := r.db.QueryRow(ctx, selectVerdictSQL, submissionID).Scan(
		&resp.SubmissionID, &resp.ProblemID, &resp.UserID, &resp.RoomID,
		&result, &summary.Verdict, &summary.Score, &summary.PassedCount, &summary.TotalCount,
		&summary.TotalTimeMs, &summary.MaxMemoryKB, &summary.FirstFailedCase, &blob, &percentiles,
		&receivedAt, &finishedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.JudgeStatusResponse{}, appErr.New(appErr.SubmissionNotFound).WithMessage("verdict not found")
		}
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.DatabaseError, "get verdict failed")
	}
	cases, err := decodeCases(blob)
	if err != nil {
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.DatabaseError, "decode verdict cases failed")
	}
	summary.Status = model.SubmissionStatus(result)

	resp.Status = model.StatusFinished
	resp.Result = summary.Status
	resp.Verdict = summary.Verdict
	resp.Score = summary.Score
	resp.Summary = &summary
	resp.Cases = cases
	resp.Timestamps = model.Timestamps{ReceivedAt: receivedAt, FinishedAt: finishedAt}
	resp.Progress = model.Progress{TotalTests: summary.TotalCount, DoneTests: len(cases)}
	if len(percentiles) > 0 {
		var p model.Percentiles
		if err := json.Unmarshal(percentiles, &p); err == nil {
			resp.Percentiles = &p
		}
	}
	return resp, nil
}

// Acceptance returns the problem's acceptance counters; a problem without
// verdicts has zero counters.
func (r *VerdictRepository) Acceptance(ctx context.Context, problemID int64) (AcceptanceStats, error) {
	if problemID <= 0 {
		return AcceptanceStats{}, appErr.ValidationError("problem_id", "required")
	}
	stats := AcceptanceStats{ProblemID: problemID}
	err := r.db.QueryRow(ctx, selectProblemStatsSQL, problemID).Scan(&stats.Submissions, &stats.Accepted)
	if err != nil {
		if db.IsNoRows(err) {
			return stats, nil
		}
		return AcceptanceStats{}, appErr.Wrapf(err, appErr.DatabaseError, "get problem stats failed")
	}
	if stats.Submissions > 0 {
		stats.Rate = math.Round(float64(stats.Accepted)/float64(stats.Submissions)*10000) / 100
	}
	return stats, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
