// Package poller drives test cases through the remote judge.
package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"koodecode/internal/judge/judge0"
	"koodecode/internal/judge/model"
	"koodecode/internal/judge/verdict"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultStep        = 200 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
	defaultMaxAttempts = 15
	defaultTotalPoints = 100
)

// CaseReport describes one resolved case.
type CaseReport struct {
	Index     int
	Total     int
	Execution model.TestCaseExecution
	// Attempts is the number of polls issued; zero when the submit failed.
	Attempts int
	Elapsed  time.Duration
}

// Observer is notified after each executed case. Skipped cases are not reported.
type Observer func(ctx context.Context, report CaseReport)

// Config holds poller settings.
type Config struct {
	Client      judge0.Client
	BaseDelay   time.Duration
	Step        time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Observer receives every case of every run, e.g. for metrics.
	Observer Observer
}

// Poller runs the submit, poll, classify loop. It holds no per-submission
// state, so one Poller serves concurrent submissions.
type Poller struct {
	client      judge0.Client
	baseDelay   time.Duration
	step        time.Duration
	maxDelay    time.Duration
	maxAttempts int
	observer    Observer
}

// New creates a poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	p := &Poller{
		client:      cfg.Client,
		baseDelay:   cfg.BaseDelay,
		step:        cfg.Step,
		maxDelay:    cfg.MaxDelay,
		maxAttempts: cfg.MaxAttempts,
		observer:    cfg.Observer,
	}
	if p.baseDelay <= 0 {
		p.baseDelay = defaultBaseDelay
	}
	if p.step < 0 {
		p.step = 0
	} else if p.step == 0 {
		p.step = defaultStep
	}
	if p.maxDelay <= 0 {
		p.maxDelay = defaultMaxDelay
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	return p, nil
}

type runOptions struct {
	totalPoints int
	verdictOpts []verdict.Option
	observer    Observer
}

// RunOption configures one ExecuteAll call.
type RunOption func(*runOptions)

// WithTotalPoints sets the point budget used for scoring. Default 100.
func WithTotalPoints(points int) RunOption {
	return func(o *runOptions) { o.totalPoints = points }
}

// WithPartialCredit reports partially accepted submissions.
func WithPartialCredit() RunOption {
	return func(o *runOptions) { o.verdictOpts = append(o.verdictOpts, verdict.WithPartialCredit()) }
}

// WithObserver adds a per-run observer, called after the poller-wide one.
func WithObserver(obs Observer) RunOption {
	return func(o *runOptions) { o.observer = obs }
}

// ExecuteCase judges a single test case.
// The returned execution is always terminal; err is set when the case could
// not be judged, in which case its status is error.
func (p *Poller) ExecuteCase(ctx context.Context, source string, languageID int, tc model.TestCase) (model.TestCaseExecution, error) {
	exec, err := p.submit(ctx, source, languageID, tc)
	if err != nil {
		return exec, err
	}
	exec, _, err = p.await(ctx, exec, tc)
	return exec, err
}

// ExecuteAll judges cases sequentially in the given order and aggregates them.
//
// Once a case ends in a compilation error or a fatal runtime status, the rest
// are marked error without contacting the judge. Case-level failures degrade to
// error. An error is returned when cases is empty, when the first submit fails,
// or when ctx is cancelled; on cancellation the partial verdict is returned too.
func (p *Poller) ExecuteAll(ctx context.Context, source string, languageID int, cases []model.TestCase, opts ...RunOption) (model.SubmissionVerdict, error) {
	ro := runOptions{totalPoints: defaultTotalPoints}
	for _, opt := range opts {
		opt(&ro)
	}
	if len(cases) == 0 {
		return model.SubmissionVerdict{}, appErr.New(appErr.TestCaseNotFound).WithMessage("problem has no test cases")
	}
	if err := ctx.Err(); err != nil {
		return model.SubmissionVerdict{}, err
	}

	results := make([]model.TestCaseExecution, 0, len(cases))
	finish := func(from int, reason string) {
		for _, tc := range cases[from:] {
			skipped := model.NewTestCaseExecution(tc)
			skipped.Status = model.CaseError
			skipped.Message = reason
			results = append(results, skipped)
		}
	}

	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			finish(i, "judging cancelled")
			return verdict.Build(results, ro.totalPoints, ro.verdictOpts...), err
		}

		start := time.Now()
		attempts := 0
		exec, err := p.submit(ctx, source, languageID, tc)
		if err != nil && i == 0 && ctx.Err() == nil {
			return model.SubmissionVerdict{}, err
		}
		if err == nil {
			exec, attempts, err = p.await(ctx, exec, tc)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				results = append(results, exec)
				finish(i+1, "judging cancelled")
				return verdict.Build(results, ro.totalPoints, ro.verdictOpts...), ctxErr
			}
			logger.Warn(ctx, "judge case failed",
				zap.Int("case_index", i),
				zap.String("test_case_id", tc.ID),
				zap.Error(err),
			)
		}

		results = append(results, exec)
		p.notify(ctx, ro.observer, CaseReport{
			Index:     i,
			Total:     len(cases),
			Execution: exec,
			Attempts:  attempts,
			Elapsed:   time.Since(start),
		})

		if isFatal(exec) {
			finish(i+1, fmt.Sprintf("skipped after case %d: %s", i, exec.Status))
			break
		}
	}

	return verdict.Build(results, ro.totalPoints, ro.verdictOpts...), nil
}

func (p *Poller) submit(ctx context.Context, source string, languageID int, tc model.TestCase) (model.TestCaseExecution, error) {
	exec := model.NewTestCaseExecution(tc)
	req := judge0.SubmitRequest{
		SourceCode:     source,
		LanguageID:     languageID,
		Stdin:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		MemoryLimitKB:  tc.MemoryLimitKB,
	}
	if tc.TimeLimitMs > 0 {
		req.CPUTimeLimitSeconds = float64(tc.TimeLimitMs) / 1000
	}
	token, err := p.client.Submit(ctx, req)
	if err != nil {
		exec.Status = model.CaseError
		exec.Message = "submit failed: " + err.Error()
		return exec, err
	}
	exec.Token = token
	return exec, nil
}

// await polls until the case resolves or the attempt budget is spent.
func (p *Poller) await(ctx context.Context, exec model.TestCaseExecution, tc model.TestCase) (model.TestCaseExecution, int, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := p.wait(ctx, p.delay(attempt)); err != nil {
			exec.Status = model.CaseError
			exec.Message = "judging cancelled"
			return exec, attempt, err
		}

		res, err := p.client.Poll(ctx, exec.Token)
		if err != nil {
			exec.Status = model.CaseError
			exec.Message = "poll failed: " + err.Error()
			return exec, attempt + 1, err
		}
		if res.InProgress() {
			if res.StatusID == judge0.StatusInQueue {
				exec.Status = model.CaseQueued
			} else {
				exec.Status = model.CaseProcessing
			}
			logger.Debug(ctx, "judge case still running",
				zap.String("token", exec.Token),
				zap.Int("attempt", attempt+1),
				zap.Int("status_id", res.StatusID),
			)
			continue
		}

		exec.ActualOutput = res.Stdout
		exec.Stderr = res.Stderr
		exec.CompileOutput = res.CompileOutput
		exec.TimeMs = res.TimeSeconds * 1000
		exec.MemoryKB = res.MemoryKB
		exec.RemoteStatusID = res.StatusID
		exec.Message = res.Message
		exec.Status = classify(ctx, res, tc)
		return exec, attempt + 1, nil
	}

	logger.Warn(ctx, "judge case timed out",
		zap.String("test_case_id", tc.ID),
		zap.String("token", exec.Token),
		zap.Int("attempts", p.maxAttempts),
	)
	exec.Status = model.CaseError
	exec.Message = fmt.Sprintf("judge did not finish after %d polls", p.maxAttempts)
	return exec, p.maxAttempts, nil
}

func (p *Poller) delay(attempt int) time.Duration {
	d := p.baseDelay + time.Duration(attempt)*p.step
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

func (p *Poller) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) notify(ctx context.Context, runObserver Observer, report CaseReport) {
	if p.observer != nil {
		p.observer(ctx, report)
	}
	if runObserver != nil {
		runObserver(ctx, report)
	}
}

// classify adds the memory limit check and logs unknown codes.
func classify(ctx context.Context, res judge0.PollResult, tc model.TestCase) model.CaseStatus {
	status := DetermineTestCaseStatus(res, tc.ExpectedOutput)
	if status == model.CaseError && isRuntimeError(res.StatusID) && tc.MemoryLimitKB > 0 && res.MemoryKB >= tc.MemoryLimitKB {
		return model.CaseMemoryLimitExceeded
	}
	if !knownStatus(res.StatusID) {
		logger.Error(ctx, "unknown judge status",
			zap.Int("status_id", res.StatusID),
			zap.String("description", res.StatusDescription),
			zap.String("test_case_id", tc.ID),
		)
	}
	return status
}

// DetermineTestCaseStatus maps a remote result to a case status. An accepted
// result passes only when the normalized output matches.
func DetermineTestCaseStatus(res judge0.PollResult, expectedOutput string) model.CaseStatus {
	switch res.StatusID {
	case judge0.StatusInQueue:
		return model.CaseQueued
	case judge0.StatusProcessing:
		return model.CaseProcessing
	case judge0.StatusAccepted:
		actual := ""
		if res.Stdout != nil {
			actual = *res.Stdout
		}
		if NormalizeOutput(actual) == NormalizeOutput(expectedOutput) {
			return model.CasePassed
		}
		return model.CaseFailed
	case judge0.StatusWrongAnswer:
		return model.CaseFailed
	case judge0.StatusTimeLimitExceeded:
		return model.CaseTimeLimitExceeded
	case judge0.StatusCompilationError:
		return model.CaseCompilationError
	case judge0.StatusRuntimeSIGSEGV, judge0.StatusRuntimeSIGXFSZ, judge0.StatusRuntimeSIGFPE,
		judge0.StatusRuntimeSIGABRT, judge0.StatusRuntimeNZEC, judge0.StatusRuntimeOther,
		judge0.StatusInternalError, judge0.StatusExecFormatError:
		return model.CaseError
	default:
		return model.CaseError
	}
}

// NormalizeOutput drops every whitespace difference.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(strings.Join(strings.Fields(s), ""))
}

func knownStatus(id int) bool {
	return id >= judge0.StatusInQueue && id <= judge0.StatusExecFormatError
}

func isRuntimeError(id int) bool {
	return id >= judge0.StatusRuntimeSIGSEGV && id <= judge0.StatusRuntimeOther
}

// isFatal reports whether the remaining cases would fail the same way.
func isFatal(exec model.TestCaseExecution) bool {
	if exec.Status == model.CaseCompilationError {
		return true
	}
	if exec.RemoteStatusID == 0 {
		return false
	}
	// A memory limit derived from a runtime status keeps its remote code.
	if exec.Status != model.CaseError && exec.Status != model.CaseMemoryLimitExceeded {
		return false
	}
	return exec.RemoteStatusID >= judge0.StatusRuntimeSIGSEGV || !knownStatus(exec.RemoteStatusID)
}
