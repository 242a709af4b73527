package models

import (
	"time"

	"gorm.io/gorm"
)

// JobDefinition declares one scheduled job to be rendered into the OS scheduler.
//
// The definition is declarative: the installed crontab is regenerated from the
// full set of enabled definitions on every mutation, never patched in place.
// NextRunAt is advisory display data; the installed schedule is authoritative.
type JobDefinition struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	// Endpoint is the local trigger path invoked by the scheduler,
	// e.g. /api/cron/expire-members.
	Endpoint string `gorm:"not null;index" json:"endpoint"`

	// Interval is a restricted cron expression: */N * * * *, 0 H * * *, or 0 * * * *.
	Interval string `gorm:"not null" json:"interval"`
	Enabled  bool   `gorm:"default:true;index" json:"enabled"`

	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `json:"next_run_at"`

	TotalRuns    int64 `gorm:"default:0" json:"total_runs"`
	TotalSuccess int64 `gorm:"default:0" json:"total_success"`
	TotalFailure int64 `gorm:"default:0" json:"total_failure"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
