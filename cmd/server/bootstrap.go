package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/api"
	"github.com/gmartins-dev/telegate/internal/app"
	"github.com/gmartins-dev/telegate/internal/database"
	"github.com/gmartins-dev/telegate/internal/scheduler"
	"github.com/gmartins-dev/telegate/internal/services"
	"github.com/gmartins-dev/telegate/internal/telegram"
	"github.com/gmartins-dev/telegate/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB     *gorm.DB
	Jobs   *services.JobService
	Runner *scheduler.Runner
	Router *gin.Engine
}

// bootstrapRuntime initialises the database, services, scheduler, and router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Telegram.BotToken == "" {
		log.Warn("telegram.bot_token is not set; gateway calls will fail until configured")
	}
	bot := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIURL)

	if cfg.Telegram.BotToken != "" {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if me, probeErr := bot.GetMe(probeCtx); probeErr != nil {
			log.Warn("telegram connectivity probe failed", zap.Error(probeErr))
		} else {
			log.Info("telegram bot connected", zap.String("bot", me.Username))
		}
		cancel()
	}

	audit, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	sweep, err := services.NewSweepService(stack.DB, bot, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise sweep service: %w", err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := services.NewNotificationService(stack.DB, mailer, bot)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	provision, err := services.NewProvisionService(stack.DB, bot, audit, services.WithNotifier(notifier))
	if err != nil {
		return nil, fmt.Errorf("initialise provision service: %w", err)
	}

	payments, err := services.NewPaymentService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise payment service: %w", err)
	}

	var installer scheduler.Installer = scheduler.NopInstaller{}
	if cfg.Jobs.InstallCrontab {
		installer = &scheduler.CrontabInstaller{Command: cfg.Jobs.CrontabCommand}
	}

	render := scheduler.RenderConfig{
		BaseURL: cfg.Server.BaseURL,
		Secret:  cfg.Jobs.TriggerSecret,
	}

	jobOpts := []services.JobOption{}
	if cfg.Jobs.RunnerEnabled {
		stack.Runner = scheduler.NewRunner(localTrigger(cfg))
		jobOpts = append(jobOpts, services.WithRunner(stack.Runner))
	}

	stack.Jobs, err = services.NewJobService(stack.DB, installer, render, jobOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise job service: %w", err)
	}

	// Install the schedule for whatever the registry already holds, so a
	// rebuilt host converges on boot without waiting for a job mutation.
	if err := stack.Jobs.ApplySchedule(ctx); err != nil {
		return nil, fmt.Errorf("apply schedule: %w", err)
	}

	if stack.Runner != nil {
		stack.Runner.Start()
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, api.Services{
		Sweep:     sweep,
		Provision: provision,
		Payments:  payments,
		Jobs:      stack.Jobs,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Runner != nil {
		stopCtx := s.Runner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("scheduler stop timed out")
		}
	}

	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func databaseConfig(cfg *app.Config) database.Config {
	dbc := database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}

	switch {
	case cfg.Database.Postgres.Enabled:
		dbc.Driver = "postgres"
		dbc.Host = cfg.Database.Postgres.Host
		dbc.Port = cfg.Database.Postgres.Port
		dbc.Name = cfg.Database.Postgres.Database
		dbc.User = cfg.Database.Postgres.Username
		dbc.Password = cfg.Database.Postgres.Password
	case cfg.Database.MySQL.Enabled:
		dbc.Driver = "mysql"
		dbc.Host = cfg.Database.MySQL.Host
		dbc.Port = cfg.Database.MySQL.Port
		dbc.Name = cfg.Database.MySQL.Database
		dbc.User = cfg.Database.MySQL.Username
		dbc.Password = cfg.Database.MySQL.Password
	}

	return dbc
}

func buildMailer(cfg *app.Config) (mail.Mailer, error) {
	if !cfg.Email.SMTP.Enabled {
		return nil, nil
	}

	return mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  true,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
}

// localTrigger dispatches in-process scheduler firings through the same HTTP
// surface the OS crontab uses, keeping both paths behaviourally identical.
func localTrigger(cfg *app.Config) scheduler.TriggerFunc {
	base := cfg.Server.BaseURL
	secret := cfg.Jobs.TriggerSecret

	return func(ctx context.Context, endpoint string) error {
		return postTrigger(ctx, base, endpoint, secret, 5*time.Minute)
	}
}
