package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/app"
	"github.com/gmartins-dev/telegate/internal/handlers"
	"github.com/gmartins-dev/telegate/internal/middleware"
	"github.com/gmartins-dev/telegate/internal/services"
)

// Services bundles the long-lived services the router exposes over HTTP.
type Services struct {
	Sweep     *services.SweepService
	Provision *services.ProvisionService
	Payments  *services.PaymentService
	Jobs      *services.JobService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svcs.Sweep == nil || svcs.Provision == nil || svcs.Payments == nil || svcs.Jobs == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	api := r.Group("/api")

	if err := registerMemberRoutes(api, db); err != nil {
		return nil, err
	}
	if err := registerGroupRoutes(api, db); err != nil {
		return nil, err
	}
	if err := registerPaymentRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerGrantRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerJobRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, db); err != nil {
		return nil, err
	}
	if err := registerCronRoutes(api, cfg, svcs); err != nil {
		return nil, err
	}
	if err := registerWebhookRoutes(api, cfg, svcs); err != nil {
		return nil, err
	}

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
