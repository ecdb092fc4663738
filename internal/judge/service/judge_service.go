package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/mq"
	"koodecode/internal/common/storage"
	"koodecode/internal/judge/distribution"
	"koodecode/internal/judge/metrics"
	"koodecode/internal/judge/model"
	"koodecode/internal/judge/poller"
	"koodecode/internal/judge/repository"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/contextkey"
	"koodecode/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix      = "judge:lock:"
	defaultLockTTL     = 10 * time.Minute
	defaultMaxSourceKB = 256
)

// StatusStore persists live submission status.
type StatusStore interface {
	Save(ctx context.Context, status model.JudgeStatusResponse) error
}

// TestCaseLoader loads a problem's test cases in order.
type TestCaseLoader interface {
	ListByProblem(ctx context.Context, problemID int64) ([]model.TestCase, error)
}

// VerdictStore persists judged verdicts.
type VerdictStore interface {
	Save(ctx context.Context, rec repository.VerdictRecord) error
}

// Executor runs a submission against its test cases.
type Executor interface {
	ExecuteAll(ctx context.Context, source string, languageID int, cases []model.TestCase, opts ...poller.RunOption) (model.SubmissionVerdict, error)
}

// Ranker places accepted results in the problem's distribution.
type Ranker interface {
	Rank(ctx context.Context, problemID int64, metric model.Metric, value float64) (distribution.Rank, error)
	Invalidate(ctx context.Context, problemID int64) error
}

// Service handles judge tasks.
type Service struct {
	statusRepo StatusStore
	testCases  TestCaseLoader
	verdicts   VerdictStore
	executor   Executor
	ranker     Ranker
	events     repository.ResultEventPublisher
	locker     cache.LockOps
	storage    storage.ObjectStorage
	producer   mq.Producer
	poolRetry  PoolRetry
	metrics    *metrics.Metrics

	sourceBucket   string
	maxSourceBytes int64
	languages      map[int]struct{}
	lockTTL        time.Duration
	judgeTimeout   time.Duration
	storageTimeout time.Duration
	statusTimeout  time.Duration
	sem            chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	StatusRepo StatusStore
	TestCases  TestCaseLoader
	Verdicts   VerdictStore
	Executor   Executor
	// Ranker and Events are optional.
	Ranker  Ranker
	Events  repository.ResultEventPublisher
	Locker  cache.LockOps
	Storage storage.ObjectStorage
	// Producer republishes tasks when the worker pool is full.
	Producer  mq.Producer
	PoolRetry PoolRetry
	Metrics   *metrics.Metrics

	SourceBucket   string
	MaxSourceKB    int64
	Languages      []int
	LockTTL        time.Duration
	JudgeTimeout   time.Duration
	StorageTimeout time.Duration
	StatusTimeout  time.Duration
	WorkerPoolSize int
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case loader is required")
	}
	if cfg.Verdicts == nil {
		return nil, fmt.Errorf("verdict store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	maxSourceKB := cfg.MaxSourceKB
	if maxSourceKB <= 0 {
		maxSourceKB = defaultMaxSourceKB
	}
	var languages map[int]struct{}
	if len(cfg.Languages) > 0 {
		languages = make(map[int]struct{}, len(cfg.Languages))
		for _, id := range cfg.Languages {
			languages[id] = struct{}{}
		}
	}
	return &Service{
		statusRepo:     cfg.StatusRepo,
		testCases:      cfg.TestCases,
		verdicts:       cfg.Verdicts,
		executor:       cfg.Executor,
		ranker:         cfg.Ranker,
		events:         cfg.Events,
		locker:         cfg.Locker,
		storage:        cfg.Storage,
		producer:       cfg.Producer,
		poolRetry:      cfg.PoolRetry,
		metrics:        cfg.Metrics,
		sourceBucket:   cfg.SourceBucket,
		maxSourceBytes: maxSourceKB * 1024,
		languages:      languages,
		lockTTL:        lockTTL,
		judgeTimeout:   cfg.JudgeTimeout,
		storageTimeout: cfg.StorageTimeout,
		statusTimeout:  cfg.StatusTimeout,
		sem:            make(chan struct{}, poolSize),
	}, nil
}

// HandleMessage processes a judge task message. A nil return commits the
// message; tasks rejected for bad input are committed after their failure
// status is recorded.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode message failed")
	}
	if payload.SubmissionID == "" || payload.ProblemID <= 0 || payload.LanguageID <= 0 || payload.SourceKey == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("message missing required fields")
	}

	ctx = context.WithValue(ctx, contextkey.SubmissionID, payload.SubmissionID)
	if _, ok := ctx.Value(contextkey.TraceID).(string); !ok {
		ctx = context.WithValue(ctx, contextkey.TraceID, uuid.NewString())
	}

	owner := uuid.NewString()
	lockKey := lockKeyPrefix + payload.SubmissionID
	locked, err := s.locker.TryLock(ctx, lockKey, owner, s.lockTTL)
	if err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "lock submission failed")
	}
	if !locked {
		logger.Info(ctx, "submission is already being judged, skipping")
		return nil
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
			logger.Warn(ctx, "unlock submission failed", zap.Error(err))
		}
	}()

	status := model.JudgeStatusResponse{
		SubmissionID: payload.SubmissionID,
		ProblemID:    payload.ProblemID,
		UserID:       payload.UserID,
		RoomID:       payload.RoomID,
		Status:       model.StatusPending,
		Timestamps:   model.Timestamps{ReceivedAt: time.Now().Unix()},
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return err
	}

	if !s.tryAcquireSlot() {
		return s.poolRetry.Requeue(ctx, s.producer, msg)
	}
	defer s.releaseSlot()
	defer s.metrics.Track()()

	status.Status = model.StatusRunning
	if err := s.saveStatus(ctx, status); err != nil {
		return err
	}
	return s.judge(ctx, payload, status)
}

func (s *Service) judge(ctx context.Context, payload model.JudgeMessage, status model.JudgeStatusResponse) error {
	if !s.languageSupported(payload.LanguageID) {
		return s.handleFailure(ctx, status, appErr.Newf(appErr.LanguageNotSupported, "language %d is not supported", payload.LanguageID))
	}
	cases, err := s.testCases.ListByProblem(ctx, payload.ProblemID)
	if err != nil {
		return s.handleFailure(ctx, status, err)
	}
	source, err := s.downloadSource(ctx, payload)
	if err != nil {
		return s.handleFailure(ctx, status, err)
	}

	status.Progress.TotalTests = len(cases)
	if err := s.saveStatus(ctx, status); err != nil {
		return err
	}

	opts := []poller.RunOption{poller.WithObserver(s.progressObserver(status))}
	if payload.TotalPoints > 0 {
		opts = append(opts, poller.WithTotalPoints(payload.TotalPoints))
	}
	if payload.PartialCredit {
		opts = append(opts, poller.WithPartialCredit())
	}

	ctxJudge := ctx
	if s.judgeTimeout > 0 {
		var cancel context.CancelFunc
		ctxJudge, cancel = context.WithTimeout(ctx, s.judgeTimeout)
		defer cancel()
	}
	verdict, err := s.executor.ExecuteAll(ctxJudge, source, payload.LanguageID, cases, opts...)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the task uncommitted so it is judged again.
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = appErr.Wrapf(err, appErr.JudgeTimeout, "judging exceeded %s", s.judgeTimeout)
		}
		return s.handleFailure(ctx, status, err)
	}

	var percentiles *model.Percentiles
	if verdict.Status == model.SubmissionAccepted {
		percentiles = s.rank(ctx, payload.ProblemID, verdict.VerdictSummary)
	}

	finishedAt := time.Now()
	err = s.verdicts.Save(ctx, repository.VerdictRecord{
		SubmissionID: payload.SubmissionID,
		ProblemID:    payload.ProblemID,
		UserID:       payload.UserID,
		RoomID:       payload.RoomID,
		LanguageID:   payload.LanguageID,
		Verdict:      verdict,
		Percentiles:  percentiles,
		ReceivedAt:   time.Unix(status.Timestamps.ReceivedAt, 0),
		FinishedAt:   finishedAt,
	})
	if err != nil {
		return s.handleFailure(ctx, status, err)
	}
	if verdict.Status == model.SubmissionAccepted && s.ranker != nil {
		if err := s.ranker.Invalidate(ctx, payload.ProblemID); err != nil {
			logger.Warn(ctx, "invalidate distribution failed", zap.Int64("problem_id", payload.ProblemID), zap.Error(err))
		}
	}

	summary := verdict.VerdictSummary
	status.Status = model.StatusFinished
	status.Verdict = summary.Verdict
	status.Result = summary.Status
	status.Score = summary.Score
	status.Summary = &summary
	status.Cases = verdict.Cases
	status.Percentiles = percentiles
	status.Timestamps.FinishedAt = finishedAt.Unix()
	status.Progress = model.Progress{TotalTests: len(cases), DoneTests: len(verdict.Cases)}
	if err := s.saveStatus(ctx, status); err != nil {
		return err
	}
	s.metrics.ObserveVerdict(summary.Status)
	s.publishResult(ctx, payload, summary, percentiles, finishedAt)

	logger.Info(ctx, "submission judged",
		zap.String("result", string(summary.Status)),
		zap.Int("score", summary.Score),
		zap.Int("passed", summary.PassedCount),
		zap.Int("total", summary.TotalCount),
	)
	return nil
}

func (s *Service) languageSupported(id int) bool {
	if s.languages == nil {
		return true
	}
	_, ok := s.languages[id]
	return ok
}

// rank computes the "beats X%" figures; a failed lookup leaves the field nil.
func (s *Service) rank(ctx context.Context, problemID int64, summary model.VerdictSummary) *model.Percentiles {
	if s.ranker == nil {
		return nil
	}
	var out model.Percentiles
	values := []struct {
		metric model.Metric
		value  float64
		dst    **float64
	}{
		{model.MetricRuntime, summary.TotalTimeMs, &out.Runtime},
		{model.MetricMemory, float64(summary.MaxMemoryKB), &out.Memory},
	}
	for _, v := range values {
		r, err := s.ranker.Rank(ctx, problemID, v.metric, v.value)
		if err != nil {
			logger.Warn(ctx, "rank submission failed", zap.String("metric", string(v.metric)), zap.Error(err))
			continue
		}
		if !r.Available {
			continue
		}
		beats := r.Beats
		*v.dst = &beats
	}
	if out.Runtime == nil && out.Memory == nil {
		return nil
	}
	return &out
}

func (s *Service) publishResult(ctx context.Context, payload model.JudgeMessage, summary model.VerdictSummary, percentiles *model.Percentiles, finishedAt time.Time) {
	if s.events == nil {
		return
	}
	if payload.RoomID != "" {
		err := s.events.PublishRoomEvent(ctx, model.RoomEvent{
			RoomID:       payload.RoomID,
			SubmissionID: payload.SubmissionID,
			UserID:       payload.UserID,
			ProblemID:    payload.ProblemID,
			Result:       summary.Status,
			Verdict:      summary.Verdict,
			Score:        summary.Score,
			PassedCount:  summary.PassedCount,
			TotalCount:   summary.TotalCount,
			CreatedAt:    finishedAt.Unix(),
		})
		if err != nil {
			logger.Warn(ctx, "publish room event failed", zap.String("room_id", payload.RoomID), zap.Error(err))
		}
	}
	err := s.events.PublishStatsEvent(ctx, model.StatsEvent{
		SubmissionID: payload.SubmissionID,
		UserID:       payload.UserID,
		ProblemID:    payload.ProblemID,
		Result:       summary.Status,
		Accepted:     summary.Status == model.SubmissionAccepted,
		TotalTimeMs:  summary.TotalTimeMs,
		MaxMemoryKB:  summary.MaxMemoryKB,
		Percentiles:  percentiles,
		CreatedAt:    finishedAt.Unix(),
	})
	if err != nil {
		logger.Warn(ctx, "publish stats event failed", zap.Error(err))
	}
}
