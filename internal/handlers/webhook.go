package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gmartins-dev/telegate/internal/services"
	"github.com/gmartins-dev/telegate/internal/telegram"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/response"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler ingests Bot API updates. Only chat_member transitions are
// consumed; they close the loop on issued invites by marking the matching
// grant as used.
type WebhookHandler struct {
	provision *services.ProvisionService
	secret    string
	log       *zap.Logger
}

func NewWebhookHandler(provision *services.ProvisionService, secret string) (*WebhookHandler, error) {
	if provision == nil {
		return nil, apperrors.New("INVALID_HANDLER", "provision service is required", http.StatusInternalServerError)
	}
	return &WebhookHandler{
		provision: provision,
		secret:    secret,
		log:       logger.WithModule("webhook"),
	}, nil
}

// POST /api/webhooks/telegram
//
// The platform retries failed deliveries, so the handler acknowledges with
// 200 whenever the update was understood, even if it carried nothing useful.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.secret != "" {
		header := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(header), []byte(h.secret)) != 1 {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, apperrors.NewValidation("malformed update payload"))
		return
	}

	if update.ChatMember == nil || update.ChatMember.InviteLink == nil {
		response.Success(c, http.StatusOK, gin.H{"handled": false})
		return
	}

	link := update.ChatMember.InviteLink.InviteLink
	if err := h.provision.MarkInviteUsed(requestContext(c), link); err != nil {
		h.log.Error("mark invite used",
			zap.Int64("update_id", update.UpdateID),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"handled": true})
}
