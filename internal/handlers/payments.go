package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmartins-dev/telegate/internal/services"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/response"
)

type PaymentHandler struct {
	payments  *services.PaymentService
	provision *services.ProvisionService
}

func NewPaymentHandler(payments *services.PaymentService, provision *services.ProvisionService) (*PaymentHandler, error) {
	if payments == nil {
		return nil, apperrors.New("INVALID_HANDLER", "payment service is required", http.StatusInternalServerError)
	}
	if provision == nil {
		return nil, apperrors.New("INVALID_HANDLER", "provision service is required", http.StatusInternalServerError)
	}
	return &PaymentHandler{payments: payments, provision: provision}, nil
}

// GET /api/payments
func (h *PaymentHandler) List(c *gin.Context) {
	filters := services.PaymentFilters{
		MemberID: c.Query("member_id"),
		Status:   c.Query("status"),
	}

	payments, err := h.payments.List(requestContext(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payments)
}

// GET /api/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.payments.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payment)
}

// POST /api/payments
func (h *PaymentHandler) Create(c *gin.Context) {
	var input services.PaymentInput
	if !bindAndValidate(c, &input) {
		return
	}

	payment, err := h.payments.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, payment)
}

// POST /api/payments/:id/approve
//
// Approval and provisioning are a single operation: the caller gets back the
// invite artifact (or the already-issued one on retries).
func (h *PaymentHandler) Approve(c *gin.Context) {
	var body struct {
		GroupID string `json:"group_id" validate:"required"`
	}
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.provision.ApprovePayment(requestContext(c), c.Param("id"), body.GroupID, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /api/payments/:id/reject
func (h *PaymentHandler) Reject(c *gin.Context) {
	payment, err := h.payments.Reject(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, payment)
}
