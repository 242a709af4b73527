package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmartins-dev/telegate/internal/models"
	"github.com/gmartins-dev/telegate/pkg/logger"
)

// TriggerFunc invokes the job handler behind a local trigger endpoint.
type TriggerFunc func(ctx context.Context, endpoint string) error

// Runner mirrors enabled job definitions into an in-process cron scheduler.
// It is a fallback for environments without an OS crontab; when both are
// active the trigger handlers stay correct because every job is idempotent.
type Runner struct {
	cron    *cron.Cron
	trigger TriggerFunc
	log     *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries []cron.EntryID
}

// RunnerOption customises the Runner.
type RunnerOption func(*Runner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithTriggerTimeout bounds each in-process job invocation.
func WithTriggerTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRunner constructs a Runner that dispatches due jobs through trigger.
func NewRunner(trigger TriggerFunc, opts ...RunnerOption) *Runner {
	runner := &Runner{
		trigger: trigger,
		log:     logger.WithModule("scheduler"),
		timeout: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(runner)
	}

	if runner.cron == nil {
		runner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return runner
}

// Sync replaces all registered entries with the enabled subset of jobs.
// Mirrors the full re-render strategy used for the OS crontab.
func (r *Runner) Sync(jobs []models.JobDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.entries {
		r.cron.Remove(id)
	}
	r.entries = r.entries[:0]

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}

		endpoint := job.Endpoint
		name := job.Name
		id, err := r.cron.AddFunc(job.Interval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()

			if err := r.trigger(ctx, endpoint); err != nil {
				r.log.Warn("scheduled job failed",
					zap.String("job", name),
					zap.String("endpoint", endpoint),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			return err
		}
		r.entries = append(r.entries, id)
	}

	return nil
}

// Len reports the number of registered entries.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Start launches the underlying scheduler.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}
