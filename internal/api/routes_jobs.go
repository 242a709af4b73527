package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerJobRoutes(api *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewJobHandler(svcs.Jobs)
	if err != nil {
		return err
	}

	jobs := api.Group("/jobs")
	{
		jobs.GET("", handler.List)
		jobs.GET("/schedule", handler.Schedule)
		jobs.POST("/schedule/apply", handler.ApplySchedule)
		jobs.GET("/:id", handler.Get)
		jobs.POST("", handler.Create)
		jobs.PATCH("/:id", handler.Update)
		jobs.DELETE("/:id", handler.Delete)
	}
	return nil
}
