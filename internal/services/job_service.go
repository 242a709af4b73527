package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	"github.com/gmartins-dev/telegate/internal/scheduler"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/metrics"
)

var endpointPattern = regexp.MustCompile(`^/api/cron/[a-z0-9-]+$`)

// JobInput carries the writable job definition fields.
type JobInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint" validate:"required"`
	Interval    string `json:"interval" validate:"required"`
	Enabled     *bool  `json:"enabled"`
}

// JobUpdate carries optional job mutations; nil fields are untouched.
type JobUpdate struct {
	Description *string `json:"description"`
	Endpoint    *string `json:"endpoint"`
	Interval    *string `json:"interval"`
	Enabled     *bool   `json:"enabled"`
}

// ExecutionOutcome records the result of one triggered job run.
type ExecutionOutcome struct {
	Endpoint string
	Success  bool
	Duration time.Duration
	Detail   string
}

// JobService owns the scheduled-job registry and keeps the OS scheduler in
// sync with it. Every mutation re-renders the full crontab from the registry;
// the installed schedule is never patched incrementally.
type JobService struct {
	db        *gorm.DB
	installer scheduler.Installer
	runner    *scheduler.Runner
	render    scheduler.RenderConfig
	log       *zap.Logger
	now       func() time.Time
}

// JobOption customises the JobService.
type JobOption func(*JobService)

// WithJobClock overrides the clock used to compute next-run projections.
func WithJobClock(now func() time.Time) JobOption {
	return func(s *JobService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunner attaches the in-process fallback runner so it tracks registry
// mutations alongside the OS crontab.
func WithRunner(r *scheduler.Runner) JobOption {
	return func(s *JobService) {
		s.runner = r
	}
}

// NewJobService constructs a JobService.
func NewJobService(db *gorm.DB, installer scheduler.Installer, render scheduler.RenderConfig, opts ...JobOption) (*JobService, error) {
	if db == nil {
		return nil, errors.New("job service: db is required")
	}
	if installer == nil {
		return nil, errors.New("job service: installer is required")
	}

	service := &JobService{
		db:        db,
		installer: installer,
		render:    render,
		log:       logger.WithModule("jobs"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create registers a new job definition and reinstalls the schedule.
func (s *JobService) Create(ctx context.Context, input JobInput) (*models.JobDefinition, error) {
	ctx = ensureContext(ctx)

	interval, err := s.validateDefinition(input.Name, input.Endpoint, input.Interval)
	if err != nil {
		return nil, err
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	next := interval.Next(s.now())
	job := models.JobDefinition{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Endpoint:    input.Endpoint,
		Interval:    input.Interval,
		Enabled:     enabled,
		NextRunAt:   &next,
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrInvalidState.WithMessage(fmt.Sprintf("job %q already exists", job.Name))
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: create: %w", err))
	}

	if err := s.ApplySchedule(ctx); err != nil {
		return nil, err
	}
	return &job, nil
}

// Get fetches a job definition by id.
func (s *JobService) Get(ctx context.Context, id string) (*models.JobDefinition, error) {
	ctx = ensureContext(ctx)

	var job models.JobDefinition
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("job not found")
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: get: %w", err))
	}
	return &job, nil
}

// List returns all job definitions ordered by name.
func (s *JobService) List(ctx context.Context) ([]models.JobDefinition, error) {
	ctx = ensureContext(ctx)

	var jobs []models.JobDefinition
	if err := s.db.WithContext(ctx).Order("name").Find(&jobs).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: list: %w", err))
	}
	return jobs, nil
}

// Update applies a partial mutation to a job definition and reinstalls the
// schedule when anything schedule-relevant changed.
func (s *JobService) Update(ctx context.Context, id string, update JobUpdate) (*models.JobDefinition, error) {
	ctx = ensureContext(ctx)

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if update.Description != nil {
		changes["description"] = *update.Description
	}
	if update.Endpoint != nil {
		if !endpointPattern.MatchString(*update.Endpoint) {
			return nil, apperrors.NewValidation("endpoint must match /api/cron/{slug}")
		}
		changes["endpoint"] = *update.Endpoint
	}
	if update.Interval != nil {
		interval, parseErr := scheduler.ParseInterval(*update.Interval)
		if parseErr != nil {
			return nil, apperrors.NewValidation(parseErr.Error())
		}
		next := interval.Next(s.now())
		changes["interval"] = *update.Interval
		changes["next_run_at"] = next
	}
	if update.Enabled != nil {
		changes["enabled"] = *update.Enabled
	}

	if len(changes) == 0 {
		return job, nil
	}

	if err := s.db.WithContext(ctx).Model(job).Updates(changes).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: update: %w", err))
	}

	if err := s.ApplySchedule(ctx); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a job definition and reinstalls the schedule without it.
func (s *JobService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.JobDefinition{}, "id = ?", id).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: delete: %w", err))
	}

	return s.ApplySchedule(ctx)
}

// RenderSchedule renders the crontab text for the current registry state
// without installing it.
func (s *JobService) RenderSchedule(ctx context.Context) (string, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return scheduler.RenderCrontab(jobs, s.render), nil
}

// ApplySchedule re-renders the full schedule and installs it, then mirrors it
// into the in-process runner when one is attached.
func (s *JobService) ApplySchedule(ctx context.Context) error {
	ctx = ensureContext(ctx)

	jobs, err := s.List(ctx)
	if err != nil {
		return err
	}

	crontab := scheduler.RenderCrontab(jobs, s.render)
	if err := s.installer.Install(ctx, crontab); err != nil {
		return apperrors.ErrInternalServer.WithInternal(fmt.Errorf("job: install schedule: %w", err))
	}

	if s.runner != nil {
		if err := s.runner.Sync(jobs); err != nil {
			return apperrors.ErrInternalServer.WithInternal(fmt.Errorf("job: sync runner: %w", err))
		}
	}

	s.log.Info("schedule applied", zap.Int("jobs", len(jobs)))
	return nil
}

// RecordExecution updates run counters and projections for the job behind an
// endpoint after a triggered run. A trigger against an endpoint with no
// registered definition is logged and otherwise ignored: the run itself
// already happened and its outcome must not be discarded over bookkeeping.
func (s *JobService) RecordExecution(ctx context.Context, outcome ExecutionOutcome) error {
	ctx = ensureContext(ctx)

	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	metrics.JobExecutions.WithLabelValues(outcome.Endpoint, result).Inc()

	// Endpoint is indexed but not unique; several definitions may share a
	// trigger path, and each one gets the run on its record.
	var jobs []models.JobDefinition
	if err := s.db.WithContext(ctx).Find(&jobs, "endpoint = ?", outcome.Endpoint).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: record execution: %w", err))
	}
	if len(jobs) == 0 {
		s.log.Warn("execution recorded for unregistered endpoint",
			zap.String("endpoint", outcome.Endpoint),
			zap.String("result", result),
		)
		return nil
	}

	now := s.now()
	for i := range jobs {
		job := &jobs[i]

		changes := map[string]any{
			"last_run_at": now,
			"total_runs":  gorm.Expr("total_runs + 1"),
		}
		if outcome.Success {
			changes["total_success"] = gorm.Expr("total_success + 1")
		} else {
			changes["total_failure"] = gorm.Expr("total_failure + 1")
		}
		if interval, parseErr := scheduler.ParseInterval(job.Interval); parseErr == nil {
			changes["next_run_at"] = interval.Next(now)
		}

		if err := s.db.WithContext(ctx).Model(job).Updates(changes).Error; err != nil {
			return apperrors.ErrPersistence.WithInternal(fmt.Errorf("job: record execution: %w", err))
		}

		s.log.Info("job execution recorded",
			zap.String("job", job.Name),
			zap.String("endpoint", outcome.Endpoint),
			zap.String("result", result),
			zap.Duration("duration", outcome.Duration),
			zap.String("detail", outcome.Detail),
		)
	}
	return nil
}

func (s *JobService) validateDefinition(name, endpoint, interval string) (scheduler.Interval, error) {
	if strings.TrimSpace(name) == "" {
		return scheduler.Interval{}, apperrors.NewValidation("job name is required")
	}
	if !endpointPattern.MatchString(endpoint) {
		return scheduler.Interval{}, apperrors.NewValidation("endpoint must match /api/cron/{slug}")
	}
	parsed, err := scheduler.ParseInterval(interval)
	if err != nil {
		return scheduler.Interval{}, apperrors.NewValidation(err.Error())
	}
	return parsed, nil
}
