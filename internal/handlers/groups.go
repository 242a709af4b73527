package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/services"
	"github.com/gmartins-dev/telegate/pkg/response"
)

type GroupHandler struct {
	svc *services.GroupService
}

func NewGroupHandler(db *gorm.DB) (*GroupHandler, error) {
	svc, err := services.NewGroupService(db)
	if err != nil {
		return nil, err
	}
	return &GroupHandler{svc: svc}, nil
}

// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, groups)
}

// GET /api/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, group)
}

// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var input services.GroupInput
	if !bindAndValidate(c, &input) {
		return
	}

	group, err := h.svc.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, group)
}

// PATCH /api/groups/:id
func (h *GroupHandler) Update(c *gin.Context) {
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if !bindAndValidate(c, &body) {
		return
	}

	group, err := h.svc.Update(requestContext(c), c.Param("id"), body.Title, body.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, group)
}

// DELETE /api/groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
