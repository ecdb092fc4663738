package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/logger"

	"go.uber.org/zap"
)

const statusKeyPrefix = "judge:status:"

const (
	defaultStatusCacheTTL      = 30 * time.Minute
	defaultStatusCacheEmptyTTL = time.Minute
)

// FinalStatusReader loads statuses that have left the cache.
type FinalStatusReader interface {
	GetFinalStatus(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
}

// StatusRepository keeps live submission status in the cache and falls
// back to persisted verdicts for finished submissions.
type StatusRepository struct {
	cache     cache.Cache
	finals    FinalStatusReader
	publisher StatusEventPublisher
	ttl       time.Duration
	emptyTTL  time.Duration
}

// NewStatusRepository creates a new repository. finals and publisher may be nil.
func NewStatusRepository(cacheClient cache.Cache, finals FinalStatusReader, publisher StatusEventPublisher, ttl, emptyTTL time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultStatusCacheEmptyTTL
	}
	return &StatusRepository{
		cache:     cacheClient,
		finals:    finals,
		publisher: publisher,
		ttl:       ttl,
		emptyTTL:  emptyTTL,
	}
}

// Get returns status by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	if submissionID == "" {
		return model.JudgeStatusResponse{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}

	status, err := cache.GetWithCached[*model.JudgeStatusResponse](
		ctx,
		r.cache,
		statusKeyPrefix+submissionID,
		r.ttl,
		r.emptyTTL,
		func(st *model.JudgeStatusResponse) bool { return st == nil },
		marshalStatus,
		unmarshalStatus,
		func(ctx context.Context) (*model.JudgeStatusResponse, error) {
			if r.finals == nil {
				return nil, nil
			}
			st, err := r.finals.GetFinalStatus(ctx, submissionID)
			if err != nil {
				if appErr.Is(err, appErr.NotFound) || appErr.Is(err, appErr.SubmissionNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return &st, nil
		},
	)
	if err != nil {
		return model.JudgeStatusResponse{}, err
	}
	if status == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission status not found")
	}
	return *status, nil
}

// Save stores status. Final statuses are published first; a failed publish
// leaves the cached status unchanged.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatusResponse) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if status.Status.IsFinal() && r.publisher != nil {
		if err := r.publisher.PublishFinalStatus(ctx, status); err != nil {
			logger.Error(ctx, "publish final status failed", zap.String("submission_id", status.SubmissionID), zap.Error(err))
			return err
		}
	}
	data, err := marshalStatus(&status)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+status.SubmissionID, data, cache.JitterTTL(r.ttl)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

func marshalStatus(status *model.JudgeStatusResponse) (string, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return "", fmt.Errorf("marshal status failed: %w", err)
	}
	return string(data), nil
}

func unmarshalStatus(data string) (*model.JudgeStatusResponse, error) {
	var resp model.JudgeStatusResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
