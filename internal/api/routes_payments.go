package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerPaymentRoutes(api *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewPaymentHandler(svcs.Payments, svcs.Provision)
	if err != nil {
		return err
	}

	payments := api.Group("/payments")
	{
		payments.GET("", handler.List)
		payments.GET("/:id", handler.Get)
		payments.POST("", handler.Create)
		payments.POST("/:id/approve", handler.Approve)
		payments.POST("/:id/reject", handler.Reject)
	}
	return nil
}
