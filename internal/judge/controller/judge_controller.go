package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"koodecode/internal/judge/distribution"
	"koodecode/internal/judge/model"
	"koodecode/internal/judge/repository"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// StatusReader reads live submission status.
type StatusReader interface {
	Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
}

// DistributionReader serves runtime and memory distributions.
type DistributionReader interface {
	Snapshot(ctx context.Context, problemID int64, metric model.Metric) (distribution.Snapshot, bool, error)
	Rank(ctx context.Context, problemID int64, metric model.Metric, value float64) (distribution.Rank, error)
}

// AcceptanceReader reads per-problem acceptance counters.
type AcceptanceReader interface {
	Acceptance(ctx context.Context, problemID int64) (repository.AcceptanceStats, error)
}

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// DistributionResponse is the histogram of one problem metric. Snapshot is
// omitted when too few accepted submissions exist.
type DistributionResponse struct {
	ProblemID int64                  `json:"problem_id"`
	Metric    model.Metric           `json:"metric"`
	Available bool                   `json:"available"`
	Snapshot  *distribution.Snapshot `json:"snapshot,omitempty"`
}

// RankResponse places one value in a problem metric distribution.
type RankResponse struct {
	ProblemID int64   `json:"problem_id"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	distribution.Rank
}

// JudgeController handles judge read requests.
type JudgeController struct {
	status       StatusReader
	distribution DistributionReader
	acceptance   AcceptanceReader
	checks       []HealthCheck
}

// NewJudgeController creates a new controller.
func NewJudgeController(status StatusReader, dist DistributionReader, acceptance AcceptanceReader, checks ...HealthCheck) *JudgeController {
	return &JudgeController{status: status, distribution: dist, acceptance: acceptance, checks: checks}
}

// RegisterRoutes mounts the judge API on r.
func (h *JudgeController) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	api := r.Group("/api/v1/judge")
	api.GET("/submissions/:id", h.GetStatus)
	api.GET("/problems/:id/distribution/:metric", h.GetDistribution)
	api.GET("/problems/:id/acceptance", h.GetAcceptance)
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.status.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// GetDistribution returns the histogram of a problem metric, or the rank of
// ?value= within it.
func (h *JudgeController) GetDistribution(c *gin.Context) {
	problemID, ok := problemIDParam(c)
	if !ok {
		return
	}
	metric, ok := model.ParseMetric(c.Param("metric"))
	if !ok {
		response.ErrorWithCode(c, appErr.InvalidMetric, "metric must be runtime or memory")
		return
	}

	if raw, ok := c.GetQuery("value"); ok {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			response.BadRequest(c, "Invalid value")
			return
		}
		rank, err := h.distribution.Rank(c.Request.Context(), problemID, metric, value)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, RankResponse{ProblemID: problemID, Metric: string(metric), Value: value, Rank: rank})
		return
	}

	snap, available, err := h.distribution.Snapshot(c.Request.Context(), problemID, metric)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := DistributionResponse{ProblemID: problemID, Metric: metric, Available: available}
	if available {
		resp.Snapshot = &snap
	}
	response.Success(c, resp)
}

// GetAcceptance returns acceptance counters for one problem.
func (h *JudgeController) GetAcceptance(c *gin.Context) {
	problemID, ok := problemIDParam(c)
	if !ok {
		return
	}
	stats, err := h.acceptance.Acceptance(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// Health probes every dependency and reports 503 when any is down.
func (h *JudgeController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			results[check.Name] = err.Error()
			healthy = false
			continue
		}
		results[check.Name] = "ok"
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": results})
}

func problemIDParam(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}
