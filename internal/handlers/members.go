package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/services"
	"github.com/gmartins-dev/telegate/pkg/response"
)

type MemberHandler struct {
	svc *services.MemberService
}

func NewMemberHandler(db *gorm.DB) (*MemberHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewMemberService(db, audit)
	if err != nil {
		return nil, err
	}
	return &MemberHandler{svc: svc}, nil
}

// GET /api/members
func (h *MemberHandler) List(c *gin.Context) {
	filters := services.MemberFilters{
		Status:  c.Query("status"),
		Expired: c.Query("expired") == "true",
	}

	members, err := h.svc.List(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// GET /api/members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// POST /api/members
func (h *MemberHandler) Create(c *gin.Context) {
	var input services.MemberInput
	if !bindAndValidate(c, &input) {
		return
	}

	member, err := h.svc.Create(requestContext(c), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, member)
}

// PATCH /api/members/:id
func (h *MemberHandler) Update(c *gin.Context) {
	var update services.MemberUpdate
	if !bindAndValidate(c, &update) {
		return
	}

	member, err := h.svc.Update(requestContext(c), c.Param("id"), update, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// POST /api/members/:id/renew
func (h *MemberHandler) Renew(c *gin.Context) {
	var body struct {
		Days int `json:"days" validate:"required,min=1"`
	}
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.svc.Renew(requestContext(c), c.Param("id"), body.Days, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// DELETE /api/members/:id
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
