package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gmartins-dev/telegate/internal/services"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/response"
)

// CronHandler serves the scheduler trigger surface. Each endpoint runs one
// idempotent job, records the execution against the registry, and reports the
// run's counters. Per-item failures inside a run are data, not an HTTP error.
type CronHandler struct {
	sweep *services.SweepService
	jobs  *services.JobService
	log   *zap.Logger
}

func NewCronHandler(sweep *services.SweepService, jobs *services.JobService) (*CronHandler, error) {
	if sweep == nil {
		return nil, apperrors.New("INVALID_HANDLER", "sweep service is required", http.StatusInternalServerError)
	}
	if jobs == nil {
		return nil, apperrors.New("INVALID_HANDLER", "job service is required", http.StatusInternalServerError)
	}
	return &CronHandler{sweep: sweep, jobs: jobs, log: logger.WithModule("cron")}, nil
}

// POST /api/cron/expire-members
func (h *CronHandler) ExpireMembers(c *gin.Context) {
	start := time.Now()
	result, err := h.sweep.SweepExpired(requestContext(c))

	h.record(c, "/api/cron/expire-members", err == nil, time.Since(start))

	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

func (h *CronHandler) record(c *gin.Context, endpoint string, success bool, duration time.Duration) {
	if err := h.jobs.RecordExecution(requestContext(c), services.ExecutionOutcome{
		Endpoint: endpoint,
		Success:  success,
		Duration: duration,
	}); err != nil {
		// Bookkeeping must not mask the run's outcome.
		h.log.Warn("record execution failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
}
