package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/services"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/response"
)

type GrantHandler struct {
	provision *services.ProvisionService
}

func NewGrantHandler(provision *services.ProvisionService) (*GrantHandler, error) {
	if provision == nil {
		return nil, apperrors.New("INVALID_HANDLER", "provision service is required", http.StatusInternalServerError)
	}
	return &GrantHandler{provision: provision}, nil
}

// GET /api/grants
func (h *GrantHandler) List(c *gin.Context) {
	filters := services.GrantFilters{
		MemberID:  c.Query("member_id"),
		PaymentID: c.Query("payment_id"),
		Status:    c.Query("status"),
	}

	grants, err := h.provision.ListGrants(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, grants)
}

// POST /api/grants/:id/revoke
func (h *GrantHandler) Revoke(c *gin.Context) {
	if err := h.provision.RevokeGrant(requestContext(c), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
