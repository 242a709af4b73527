package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/services"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/response"
)

type JobHandler struct {
	svc *services.JobService
}

func NewJobHandler(svc *services.JobService) (*JobHandler, error) {
	if svc == nil {
		return nil, apperrors.New("INVALID_HANDLER", "job service is required", http.StatusInternalServerError)
	}
	return &JobHandler{svc: svc}, nil
}

// GET /api/jobs
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, jobs)
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, job)
}

// POST /api/jobs
func (h *JobHandler) Create(c *gin.Context) {
	var input services.JobInput
	if !bindAndValidate(c, &input) {
		return
	}

	job, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, job)
}

// PATCH /api/jobs/:id
func (h *JobHandler) Update(c *gin.Context) {
	var update services.JobUpdate
	if !bindAndValidate(c, &update) {
		return
	}

	job, err := h.svc.Update(requestContext(c), c.Param("id"), update)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, job)
}

// DELETE /api/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/jobs/schedule
//
// Returns the crontab text that would be installed for the current registry,
// for operator inspection before an apply.
func (h *JobHandler) Schedule(c *gin.Context) {
	crontab, err := h.svc.RenderSchedule(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"crontab": crontab})
}

// POST /api/jobs/schedule/apply
func (h *JobHandler) ApplySchedule(c *gin.Context) {
	if err := h.svc.ApplySchedule(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"applied": true})
}
