package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
)

// PaymentInput carries the writable payment fields.
type PaymentInput struct {
	MemberID    string  `json:"member_id" validate:"required"`
	PlanID      *string `json:"plan_id"`
	AmountCents int64   `json:"amount_cents" validate:"required,min=1"`
	Method      string  `json:"method"`
	ReceiptPath string  `json:"receipt_path"`
}

// PaymentFilters narrows payment listings.
type PaymentFilters struct {
	MemberID string
	Status   string
}

// PaymentService records incoming payments awaiting approval.
type PaymentService struct {
	db *gorm.DB
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB) (*PaymentService, error) {
	if db == nil {
		return nil, errors.New("payment service: db is required")
	}
	return &PaymentService{db: db}, nil
}

// Create records a pending payment for an existing member.
func (s *PaymentService) Create(ctx context.Context, input PaymentInput) (*models.Payment, error) {
	ctx = ensureContext(ctx)

	if input.AmountCents <= 0 {
		return nil, apperrors.NewValidation("amount_cents must be positive")
	}

	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, "id = ?", input.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("member not found")
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: load member: %w", err))
	}

	if input.PlanID != nil {
		var plan models.Plan
		if err := s.db.WithContext(ctx).First(&plan, "id = ?", *input.PlanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrNotFound.WithMessage("plan not found")
			}
			return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: load plan: %w", err))
		}
	}

	payment := models.Payment{
		MemberID:    member.ID,
		PlanID:      input.PlanID,
		AmountCents: input.AmountCents,
		Method:      input.Method,
		Status:      models.PaymentStatusPending,
		ReceiptPath: input.ReceiptPath,
	}

	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: create: %w", err))
	}
	return &payment, nil
}

// Get fetches a payment by id.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	ctx = ensureContext(ctx)

	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Plan").First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("payment not found")
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: get: %w", err))
	}
	return &payment, nil
}

// Reject marks a pending payment as rejected.
func (s *PaymentService) Reject(ctx context.Context, id string) (*models.Payment, error) {
	ctx = ensureContext(ctx)

	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, apperrors.ErrInvalidState.WithMessage(
			fmt.Sprintf("payment %s is %s and cannot be rejected", payment.ID, payment.Status))
	}

	if err := s.db.WithContext(ctx).Model(payment).
		Update("status", models.PaymentStatusRejected).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: reject: %w", err))
	}
	return s.Get(ctx, id)
}

// List returns payments matching the filters, newest first.
func (s *PaymentService) List(ctx context.Context, filters PaymentFilters) ([]models.Payment, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if filters.MemberID != "" {
		query = query.Where("member_id = ?", filters.MemberID)
	}
	if filters.Status != "" {
		status, err := models.ParsePaymentStatus(filters.Status)
		if err != nil {
			return nil, apperrors.NewValidation(err.Error())
		}
		query = query.Where("status = ?", status)
	}

	var payments []models.Payment
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("payment: list: %w", err))
	}
	return payments, nil
}
