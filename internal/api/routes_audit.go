package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, db *gorm.DB) error {
	handler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return err
	}

	api.GET("/audit", handler.List)
	return nil
}
