package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmartins-dev/telegate/internal/models"
)

func TestRenderCrontabSortsAndSkipsDisabled(t *testing.T) {
	jobs := []models.JobDefinition{
		{Name: "sweep", Endpoint: "/api/cron/expire-members", Interval: "0 3 * * *", Enabled: true},
		{Name: "disabled", Endpoint: "/api/cron/other", Interval: "0 * * * *", Enabled: false},
		{Name: "heartbeat", Endpoint: "/api/cron/heartbeat", Interval: "*/5 * * * *", Enabled: true},
	}

	text := RenderCrontab(jobs, RenderConfig{BaseURL: "http://127.0.0.1:8080/", Secret: "s3cret"})

	require.NotContains(t, text, "/api/cron/other")
	require.Contains(t, text, "0 3 * * * curl -fsS -m 300 -X POST -H 'Authorization: Bearer s3cret' http://127.0.0.1:8080/api/cron/expire-members >/dev/null 2>&1")

	// Alphabetical by job name regardless of input order.
	heartbeat := strings.Index(text, "/api/cron/heartbeat")
	sweep := strings.Index(text, "/api/cron/expire-members")
	require.Less(t, heartbeat, sweep)
}

func TestRenderCrontabDeterministic(t *testing.T) {
	jobs := []models.JobDefinition{
		{Name: "b", Endpoint: "/api/cron/b", Interval: "0 * * * *", Enabled: true},
		{Name: "a", Endpoint: "/api/cron/a", Interval: "0 * * * *", Enabled: true},
	}
	cfg := RenderConfig{BaseURL: "http://localhost:9000", Secret: ""}

	first := RenderCrontab(jobs, cfg)
	second := RenderCrontab([]models.JobDefinition{jobs[1], jobs[0]}, cfg)
	require.Equal(t, first, second)
	require.NotContains(t, first, "Authorization")
}

func TestRenderCrontabEmptyRegistryStillHasHeader(t *testing.T) {
	text := RenderCrontab(nil, RenderConfig{BaseURL: "http://localhost:8080"})
	require.Contains(t, text, "Generated by telegate")
}

func TestNopInstaller(t *testing.T) {
	require.NoError(t, NopInstaller{}.Install(context.Background(), "anything"))
}
