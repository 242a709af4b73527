package scheduler

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/gmartins-dev/telegate/internal/models"
)

const (
	headerComment = "# Generated by telegate; manual edits are overwritten on every job change."
	curlTimeout   = 300 // seconds; long enough for a full sweep over a large roster
)

// RenderConfig carries the pieces needed to turn job definitions into
// executable crontab lines.
type RenderConfig struct {
	// BaseURL is the address the OS scheduler reaches this service on,
	// e.g. http://127.0.0.1:8080.
	BaseURL string
	// Secret is the shared bearer token expected by the trigger surface.
	// When empty the Authorization header is omitted.
	Secret string
}

// RenderCrontab deterministically renders the full schedule from all enabled
// job definitions. The whole text replaces the installed crontab: partial
// patches are never produced, so the installed schedule cannot drift from the
// registry.
func RenderCrontab(jobs []models.JobDefinition, cfg RenderConfig) string {
	enabled := make([]models.JobDefinition, 0, len(jobs))
	for _, job := range jobs {
		if job.Enabled {
			enabled = append(enabled, job)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })

	base := strings.TrimRight(cfg.BaseURL, "/")

	var b strings.Builder
	b.WriteString(headerComment)
	b.WriteString("\n")
	for _, job := range enabled {
		fmt.Fprintf(&b, "# %s\n", job.Name)

		auth := ""
		if cfg.Secret != "" {
			auth = fmt.Sprintf(" -H 'Authorization: Bearer %s'", cfg.Secret)
		}
		fmt.Fprintf(&b, "%s curl -fsS -m %d -X POST%s %s%s >/dev/null 2>&1\n",
			job.Interval, curlTimeout, auth, base, job.Endpoint)
	}
	return b.String()
}

// Installer installs a rendered schedule into the OS scheduler.
type Installer interface {
	Install(ctx context.Context, crontab string) error
}

// CrontabInstaller installs schedules by piping them to the crontab binary,
// replacing the invoking user's crontab wholesale.
type CrontabInstaller struct {
	// Command overrides the crontab binary path; defaults to "crontab".
	Command string
}

func (in *CrontabInstaller) Install(ctx context.Context, crontab string) error {
	command := in.Command
	if command == "" {
		command = "crontab"
	}

	cmd := exec.CommandContext(ctx, command, "-")
	cmd.Stdin = strings.NewReader(crontab)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("install crontab: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NopInstaller discards schedules. Used when crontab installation is disabled
// (e.g. containers relying on the in-process runner or an external trigger).
type NopInstaller struct{}

func (NopInstaller) Install(context.Context, string) error { return nil }
