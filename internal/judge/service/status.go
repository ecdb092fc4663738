package service

import (
	"context"
	"time"

	"koodecode/internal/judge/model"
	"koodecode/internal/judge/poller"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/logger"

	"go.uber.org/zap"
)

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) error {
	ctxStatus := ctx
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctx, s.statusTimeout)
		defer cancel()
	}
	return s.statusRepo.Save(ctxStatus, status)
}

// progressObserver records intermediate progress after each case.
func (s *Service) progressObserver(base model.JudgeStatusResponse) poller.Observer {
	return func(ctx context.Context, report poller.CaseReport) {
		status := base
		status.Progress = model.Progress{TotalTests: report.Total, DoneTests: report.Index + 1}
		if err := s.saveStatus(ctx, status); err != nil {
			logger.Warn(ctx, "update intermediate status failed", zap.Error(err))
		}
	}
}

// handleFailure records a System Error status. Errors caused by the task
// itself are swallowed so the message is committed; the rest are returned
// for redelivery.
func (s *Service) handleFailure(ctx context.Context, base model.JudgeStatusResponse, err error) error {
	code := appErr.GetCode(err)
	failed := base
	failed.Status = model.StatusFailed
	failed.Verdict = model.VerdictSystemError
	failed.ErrorCode = int(code)
	failed.ErrorMessage = err.Error()
	failed.Timestamps.FinishedAt = time.Now().Unix()

	logger.Error(ctx, "judge submission failed", zap.Int("error_code", int(code)), zap.Error(err))
	s.metrics.ObserveFailure(code)
	if saveErr := s.saveStatus(ctx, failed); saveErr != nil {
		logger.Warn(ctx, "update failure status failed", zap.Error(saveErr))
	}
	if isPermanent(code) {
		return nil
	}
	return err
}

func isPermanent(code appErr.ErrorCode) bool {
	switch code {
	case appErr.InvalidParams, appErr.ValidationFailed, appErr.ProblemNotFound,
		appErr.LanguageNotSupported, appErr.TestCaseNotFound, appErr.SourceIntegrityFailed:
		return true
	}
	return false
}
