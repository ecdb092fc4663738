package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErr "koodecode/pkg/errors"

	"golang.org/x/time/rate"
)

// Remote status codes.
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeSIGSEGV    = 7
	StatusRuntimeSIGXFSZ    = 8
	StatusRuntimeSIGFPE     = 9
	StatusRuntimeSIGABRT    = 10
	StatusRuntimeNZEC       = 11
	StatusRuntimeOther      = 12
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultAuthHeader        = "X-Auth-Token"
	defaultRequestsPerSecond = 20
	defaultRequestBurst      = 5
	maxErrorBodyBytes        = 4 << 10

	submissionsPath        = "/submissions"
	submissionsCreateQuery = "base64_encoded=false&wait=false"
	submissionsPollQuery   = "base64_encoded=false&fields=token,status,stdout,stderr,compile_output,time,memory,message"
	contentTypeJSON        = "application/json"
)

// Config holds remote judge connection settings.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	AuthToken      string        `yaml:"authToken"`
	AuthHeader     string        `yaml:"authHeader"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// RequestsPerSecond caps outbound calls; zero uses the default, negative disables limiting.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// SubmitRequest is one (source, test input) pair sent for execution.
type SubmitRequest struct {
	SourceCode     string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
	// Optional limits; zero leaves the remote default.
	CPUTimeLimitSeconds float64
	MemoryLimitKB       int64
}

// PollResult is a snapshot of a remote submission.
type PollResult struct {
	StatusID          int
	StatusDescription string
	Stdout            *string
	Stderr            string
	CompileOutput     string
	Message           string
	TimeSeconds       float64
	MemoryKB          int64
}

// InProgress reports whether the remote judge is still working.
func (r PollResult) InProgress() bool {
	return r.StatusID == StatusInQueue || r.StatusID == StatusProcessing
}

// Client talks to the remote execution service.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, token string) (PollResult, error)
}

// HTTPClient is the Judge0 REST implementation of Client.
type HTTPClient struct {
	baseURL    string
	authToken  string
	authHeader string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client. httpClient may be nil.
func NewHTTPClient(cfg Config, httpClient *http.Client) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge0 baseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge0 baseURL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	header := cfg.AuthHeader
	if header == "" {
		header = defaultAuthHeader
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond >= 0 {
		rps := cfg.RequestsPerSecond
		if rps == 0 {
			rps = defaultRequestsPerSecond
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = defaultRequestBurst
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &HTTPClient{
		baseURL:    base,
		authToken:  cfg.AuthToken,
		authHeader: header,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    limiter,
	}, nil
}

type submitBody struct {
	SourceCode     string   `json:"source_code"`
	LanguageID     int      `json:"language_id"`
	Stdin          string   `json:"stdin"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	CPUTimeLimit   *float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    *int64   `json:"memory_limit,omitempty"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type pollResponse struct {
	Token  string `json:"token"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	// time is a decimal string of seconds, e.g. "0.012"
	Time   json.Number `json:"time"`
	Memory *int64      `json:"memory"`
}

// Submit creates a remote submission and returns its token.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.LanguageID <= 0 {
		return "", appErr.ValidationError("language_id", "required")
	}
	body := submitBody{
		SourceCode:     req.SourceCode,
		LanguageID:     req.LanguageID,
		Stdin:          req.Stdin,
		ExpectedOutput: req.ExpectedOutput,
	}
	if req.CPUTimeLimitSeconds > 0 {
		limit := req.CPUTimeLimitSeconds
		body.CPUTimeLimit = &limit
	}
	if req.MemoryLimitKB > 0 {
		limit := req.MemoryLimitKB
		body.MemoryLimit = &limit
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal submission failed: %w", err)
	}

	var out submitResponse
	endpoint := c.baseURL + submissionsPath + "?" + submissionsCreateQuery
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", appErr.New(appErr.JudgeSystemError).WithMessage("judge0 response missing token")
	}
	return out.Token, nil
}

// Poll fetches the current state of a remote submission.
func (c *HTTPClient) Poll(ctx context.Context, token string) (PollResult, error) {
	if token == "" {
		return PollResult{}, appErr.ValidationError("token", "required")
	}
	var out pollResponse
	endpoint := c.baseURL + submissionsPath + "/" + url.PathEscape(token) + "?" + submissionsPollQuery
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return PollResult{}, err
	}

	res := PollResult{
		StatusID:          out.Status.ID,
		StatusDescription: out.Status.Description,
		Stdout:            out.Stdout,
		Stderr:            deref(out.Stderr),
		CompileOutput:     deref(out.CompileOutput),
		Message:           deref(out.Message),
	}
	if out.Time != "" {
		secs, err := out.Time.Float64()
		if err != nil {
			return PollResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "invalid judge0 time %q", out.Time)
		}
		res.TimeSeconds = secs
	}
	if out.Memory != nil {
		res.MemoryKB = *out.Memory
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build judge0 request failed: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.authToken != "" {
		req.Header.Set(c.authHeader, c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// caller cancellation is not a judge outage
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "judge0 %s request failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		code := appErr.JudgeSystemError
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			code = appErr.TooManyRequests
		case resp.StatusCode >= 500:
			code = appErr.JudgeUnavailable
		}
		return appErr.Newf(code, "judge0 returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "decode judge0 response failed")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
