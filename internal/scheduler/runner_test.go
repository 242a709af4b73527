package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmartins-dev/telegate/internal/models"
)

func TestRunnerSyncRegistersEnabledJobsOnly(t *testing.T) {
	runner := NewRunner(func(ctx context.Context, endpoint string) error { return nil })

	jobs := []models.JobDefinition{
		{Name: "sweep", Endpoint: "/api/cron/expire-members", Interval: "*/10 * * * *", Enabled: true},
		{Name: "off", Endpoint: "/api/cron/off", Interval: "0 * * * *", Enabled: false},
		{Name: "daily", Endpoint: "/api/cron/daily", Interval: "0 4 * * *", Enabled: true},
	}

	require.NoError(t, runner.Sync(jobs))
	require.Equal(t, 2, runner.Len())

	// Re-sync replaces entries instead of accumulating them.
	require.NoError(t, runner.Sync(jobs[:1]))
	require.Equal(t, 1, runner.Len())

	require.NoError(t, runner.Sync(nil))
	require.Equal(t, 0, runner.Len())
}

func TestRunnerSyncRejectsMalformedExpression(t *testing.T) {
	runner := NewRunner(func(ctx context.Context, endpoint string) error { return nil })

	err := runner.Sync([]models.JobDefinition{
		{Name: "broken", Endpoint: "/api/cron/broken", Interval: "not-cron", Enabled: true},
	})
	require.Error(t, err)
}
