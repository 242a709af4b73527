package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerGroupRoutes(api *gin.RouterGroup, db *gorm.DB) error {
	handler, err := handlers.NewGroupHandler(db)
	if err != nil {
		return err
	}

	groups := api.Group("/groups")
	{
		groups.GET("", handler.List)
		groups.GET("/:id", handler.Get)
		groups.POST("", handler.Create)
		groups.PATCH("/:id", handler.Update)
		groups.DELETE("/:id", handler.Delete)
	}
	return nil
}
