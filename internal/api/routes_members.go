package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerMemberRoutes(api *gin.RouterGroup, db *gorm.DB) error {
	handler, err := handlers.NewMemberHandler(db)
	if err != nil {
		return err
	}

	members := api.Group("/members")
	{
		members.GET("", handler.List)
		members.GET("/:id", handler.Get)
		members.POST("", handler.Create)
		members.PATCH("/:id", handler.Update)
		members.POST("/:id/renew", handler.Renew)
		members.DELETE("/:id", handler.Delete)
	}
	return nil
}
