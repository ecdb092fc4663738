package distribution

import (
	"context"
	"fmt"

	"koodecode/internal/common/db"
	"koodecode/internal/judge/model"
)

const defaultSampleLimit = 10000

// metricColumns maps a metric to its verdict column.
var metricColumns = map[model.Metric]string{
	model.MetricRuntime: "total_time_ms",
	model.MetricMemory:  "max_memory_kb",
}

// MySQLSource reads accepted verdicts written by the verdict repository.
type MySQLSource struct {
	db          db.Querier
	sampleLimit int
}

// NewMySQLSource creates a source reading at most sampleLimit of the newest
// accepted verdicts.
func NewMySQLSource(database db.Querier, sampleLimit int) *MySQLSource {
	if sampleLimit <= 0 {
		sampleLimit = defaultSampleLimit
	}
	return &MySQLSource{db: database, sampleLimit: sampleLimit}
}

// AcceptedValues returns the metric of the problem's accepted submissions.
func (s *MySQLSource) AcceptedValues(ctx context.Context, problemID int64, metric model.Metric) ([]float64, error) {
	column, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM judge_verdicts WHERE problem_id = ? AND result = ? ORDER BY finished_at DESC LIMIT ?",
		column,
	)
	rows, err := s.db.Query(ctx, query, problemID, string(model.SubmissionAccepted), s.sampleLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]float64, 0, 64)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
