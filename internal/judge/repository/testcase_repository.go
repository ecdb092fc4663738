package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/db"
	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

const (
	testCaseKeyPrefix       = "judge:testcases:"
	defaultTestCaseCacheTTL = 10 * time.Minute
	defaultTestCaseEmptyTTL = 30 * time.Second
)

const selectTestCasesByProblem = `SELECT id, ordinal, input, expected_output, time_limit_ms, memory_limit_kb
FROM problem_test_cases WHERE problem_id = ? ORDER BY ordinal ASC, id ASC`

// TestCaseRepository loads a problem's test cases in definition order.
type TestCaseRepository struct {
	db       db.Querier
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewTestCaseRepository creates a new repository. cacheClient may be nil.
func NewTestCaseRepository(database db.Querier, cacheClient cache.BasicOps, ttl time.Duration) *TestCaseRepository {
	if ttl <= 0 {
		ttl = defaultTestCaseCacheTTL
	}
	return &TestCaseRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: defaultTestCaseEmptyTTL}
}

// ListByProblem returns the problem's test cases ordered by ordinal.
func (r *TestCaseRepository) ListByProblem(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	var (
		cases []model.TestCase
		err   error
	)
	if r.cache == nil {
		cases, err = r.query(ctx, problemID)
	} else {
		cases, err = cache.GetWithCached[[]model.TestCase](
			ctx,
			r.cache,
			fmt.Sprintf("%s%d", testCaseKeyPrefix, problemID),
			r.ttl,
			r.emptyTTL,
			func(c []model.TestCase) bool { return len(c) == 0 },
			marshalTestCases,
			unmarshalTestCases,
			func(ctx context.Context) ([]model.TestCase, error) { return r.query(ctx, problemID) },
		)
	}
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, appErr.Newf(appErr.TestCaseNotFound, "problem %d has no test cases", problemID)
	}
	return cases, nil
}

func (r *TestCaseRepository) query(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	rows, err := r.db.Query(ctx, selectTestCasesByProblem, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query test cases failed")
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.Ordinal, &tc.Input, &tc.ExpectedOutput, &tc.TimeLimitMs, &tc.MemoryLimitKB); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return cases, nil
}

func marshalTestCases(cases []model.TestCase) (string, error) {
	data, err := json.Marshal(cases)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalTestCases(data string) ([]model.TestCase, error) {
	var cases []model.TestCase
	if err := json.Unmarshal([]byte(data), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}
