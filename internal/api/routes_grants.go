package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerGrantRoutes(api *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewGrantHandler(svcs.Provision)
	if err != nil {
		return err
	}

	grants := api.Group("/grants")
	{
		grants.GET("", handler.List)
		grants.POST("/:id/revoke", handler.Revoke)
	}
	return nil
}
