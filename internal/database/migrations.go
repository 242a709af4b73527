package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	"github.com/gmartins-dev/telegate/internal/scheduler"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Plan{},
		&models.Member{},
		&models.Payment{},
		&models.Group{},
		&models.AccessGrant{},
		&models.JobDefinition{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	return ensureActiveGrantIndex(db)
}

// ensureActiveGrantIndex enforces "at most one active grant per payment" at
// the storage layer where the engine supports partial indexes. MySQL does
// not; there the lookup-before-insert protocol is the only guard.
func ensureActiveGrantIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		return db.Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_access_grants_payment_active " +
				"ON access_grants (payment_id) WHERE status = 'active'",
		).Error
	}
	return nil
}

// SeedData registers the built-in scheduled jobs when the registry is empty.
func SeedData(db *gorm.DB) error {
	defaults := []models.JobDefinition{
		{
			Name:        "expire-members",
			Description: "Revoke group access for members past their access deadline",
			Endpoint:    "/api/cron/expire-members",
			Interval:    "0 3 * * *",
			Enabled:     true,
		},
	}

	now := time.Now()
	for _, job := range defaults {
		interval, err := scheduler.ParseInterval(job.Interval)
		if err != nil {
			return fmt.Errorf("seed job %s: %w", job.Name, err)
		}
		next := interval.Next(now)
		job.NextRunAt = &next

		if err := db.Where(models.JobDefinition{Name: job.Name}).
			Attrs(job).
			FirstOrCreate(&models.JobDefinition{}).Error; err != nil {
			return fmt.Errorf("seed job %s: %w", job.Name, err)
		}
	}

	return nil
}
