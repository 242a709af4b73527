package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/app"
	"github.com/gmartins-dev/telegate/internal/handlers"
)

func registerWebhookRoutes(api *gin.RouterGroup, cfg *app.Config, svcs Services) error {
	handler, err := handlers.NewWebhookHandler(svcs.Provision, cfg.Telegram.WebhookSecret)
	if err != nil {
		return err
	}

	api.POST("/webhooks/telegram", handler.Receive)
	return nil
}
