package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/app"
	"github.com/gmartins-dev/telegate/internal/handlers"
	"github.com/gmartins-dev/telegate/internal/middleware"
)

func registerCronRoutes(api *gin.RouterGroup, cfg *app.Config, svcs Services) error {
	handler, err := handlers.NewCronHandler(svcs.Sweep, svcs.Jobs)
	if err != nil {
		return err
	}

	cron := api.Group("/cron")
	cron.Use(middleware.CronAuth(cfg.Jobs.TriggerSecret))
	{
		cron.POST("/expire-members", handler.ExpireMembers)
	}
	return nil
}
