package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
)

const (
	auditActionMemberCreated = "membro_criado"
	auditActionMemberUpdated = "membro_atualizado"
	auditActionMemberDeleted = "membro_excluido"
)

// MemberInput carries the writable member fields.
type MemberInput struct {
	Name             string  `json:"name" validate:"required"`
	Email            string  `json:"email" validate:"omitempty,email"`
	Phone            string  `json:"phone"`
	TelegramUserID   *int64  `json:"telegram_user_id"`
	TelegramUsername string  `json:"telegram_username"`
	AccessDays       int     `json:"access_days" validate:"omitempty,min=1"`
	Notes            string  `json:"notes"`
	PlanID           *string `json:"plan_id"`
}

// MemberUpdate carries optional member mutations; nil fields are untouched.
type MemberUpdate struct {
	Name             *string    `json:"name"`
	Email            *string    `json:"email"`
	Phone            *string    `json:"phone"`
	TelegramUserID   *int64     `json:"telegram_user_id"`
	TelegramUsername *string    `json:"telegram_username"`
	AccessUntil      *time.Time `json:"access_until"`
	Status           *string    `json:"status"`
	Notes            *string    `json:"notes"`
}

// MemberFilters narrows member listings.
type MemberFilters struct {
	Status  string
	Expired bool // only active members past their deadline
}

// MemberService manages member records and their lifecycle transitions.
type MemberService struct {
	db    *gorm.DB
	audit *AuditService
	log   *zap.Logger
	now   func() time.Time
}

// MemberOption customises the MemberService.
type MemberOption func(*MemberService)

// WithMemberClock overrides the clock used for access windows.
func WithMemberClock(now func() time.Time) MemberOption {
	return func(s *MemberService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, audit *AuditService, opts ...MemberOption) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	if audit == nil {
		return nil, errors.New("member service: audit service is required")
	}

	service := &MemberService{
		db:    db,
		audit: audit,
		log:   logger.WithModule("members"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create registers a new member with an initial access window.
func (s *MemberService) Create(ctx context.Context, input MemberInput, actor string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidation("member name is required")
	}

	days := input.AccessDays
	if days <= 0 {
		days = defaultGrantDurationDays
	}

	member := models.Member{
		Name:             strings.TrimSpace(input.Name),
		Email:            strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:            strings.TrimSpace(input.Phone),
		TelegramUserID:   input.TelegramUserID,
		TelegramUsername: strings.TrimPrefix(strings.TrimSpace(input.TelegramUsername), "@"),
		AccessUntil:      s.now().AddDate(0, 0, days),
		Status:           models.MemberStatusActive,
		Notes:            input.Notes,
		PlanID:           input.PlanID,
	}

	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: create: %w", err))
	}

	s.auditLog(ctx, auditActionMemberCreated, member.ID, actor, map[string]any{
		"name":         member.Name,
		"access_until": member.AccessUntil,
	})

	return &member, nil
}

// Get fetches a member by id.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var member models.Member
	if err := s.db.WithContext(ctx).Preload("Plan").First(&member, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("member not found")
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: get: %w", err))
	}
	return &member, nil
}

// List returns members matching the filters, newest first.
func (s *MemberService) List(ctx context.Context, filters MemberFilters) ([]models.Member, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Member{})
	if filters.Status != "" {
		status, err := models.ParseMemberStatus(filters.Status)
		if err != nil {
			return nil, apperrors.NewValidation(err.Error())
		}
		query = query.Where("status = ?", status)
	}
	if filters.Expired {
		query = query.Where("status = ? AND access_until < ?", models.MemberStatusActive, s.now())
	}

	var members []models.Member
	if err := query.Order("created_at DESC").Find(&members).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: list: %w", err))
	}
	return members, nil
}

// Update applies a partial mutation to a member.
func (s *MemberService) Update(ctx context.Context, id string, update MemberUpdate, actor string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if update.Name != nil {
		changes["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Email != nil {
		changes["email"] = strings.ToLower(strings.TrimSpace(*update.Email))
	}
	if update.Phone != nil {
		changes["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.TelegramUserID != nil {
		changes["telegram_user_id"] = *update.TelegramUserID
	}
	if update.TelegramUsername != nil {
		changes["telegram_username"] = strings.TrimPrefix(strings.TrimSpace(*update.TelegramUsername), "@")
	}
	if update.AccessUntil != nil {
		changes["access_until"] = *update.AccessUntil
	}
	if update.Status != nil {
		status, parseErr := models.ParseMemberStatus(*update.Status)
		if parseErr != nil {
			return nil, apperrors.NewValidation(parseErr.Error())
		}
		changes["status"] = status
	}
	if update.Notes != nil {
		changes["notes"] = *update.Notes
	}

	if len(changes) == 0 {
		return member, nil
	}

	if err := s.db.WithContext(ctx).Model(member).Updates(changes).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: update: %w", err))
	}

	s.auditLog(ctx, auditActionMemberUpdated, member.ID, actor, map[string]any{"fields": fieldNames(changes)})

	return s.Get(ctx, id)
}

// Renew extends a member's access window and reactivates them. Removed and
// removal_failed members become active again, ready for a fresh invite.
func (s *MemberService) Renew(ctx context.Context, id string, days int, actor string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	if days <= 0 {
		return nil, apperrors.NewValidation("renewal days must be positive")
	}

	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	base := now
	if member.Status == models.MemberStatusActive && member.AccessUntil.After(now) {
		base = member.AccessUntil
	}
	until := base.AddDate(0, 0, days)

	if err := s.db.WithContext(ctx).Model(member).Updates(map[string]any{
		"status":       models.MemberStatusActive,
		"access_until": until,
	}).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: renew: %w", err))
	}

	s.auditLog(ctx, auditActionRenewal, member.ID, actor, map[string]any{
		"days":         days,
		"access_until": until,
	})

	return s.Get(ctx, id)
}

// Delete removes a member record. Audit history is retained: the audit log
// references members weakly and never cascades.
func (s *MemberService) Delete(ctx context.Context, id string, actor string) error {
	ctx = ensureContext(ctx)

	member, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Member{}, "id = ?", id).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("member: delete: %w", err))
	}

	s.auditLog(ctx, auditActionMemberDeleted, member.ID, actor, map[string]any{"name": member.Name})

	return nil
}

func (s *MemberService) auditLog(ctx context.Context, action, memberID, actor string, metadata map[string]any) {
	if err := s.audit.Log(ctx, AuditEntry{
		Action:   action,
		MemberID: &memberID,
		Actor:    actor,
		Metadata: metadata,
	}); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func fieldNames(changes map[string]any) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	return names
}
