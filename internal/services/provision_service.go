package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/metrics"
)

const (
	auditActionProvisioned     = "acesso_provisionado"
	auditActionProvisionError  = "erro_provisionamento"
	auditActionPaymentApproved = "pagamento_aprovado"
	auditActionRenewal         = "renovacao"
	auditActionGrantRevoked    = "convite_revogado"
	auditActionInviteUsed      = "convite_utilizado"

	defaultGrantDurationDays = 30
)

// ProvisionResult is returned by ProvisionAccess.
type ProvisionResult struct {
	GrantID    string `json:"grant_id"`
	InviteLink string `json:"invite_link"`
	// Reused is true when an earlier call already issued the grant and this
	// call returned the same artifact instead of creating a second one.
	Reused bool `json:"reused"`
}

// ProvisionOption customises the ProvisionService.
type ProvisionOption func(*ProvisionService)

// WithProvisionClock overrides the clock used for timestamps.
func WithProvisionClock(now func() time.Time) ProvisionOption {
	return func(s *ProvisionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier attaches a notification collaborator invoked after approval.
func WithNotifier(notifier *NotificationService) ProvisionOption {
	return func(s *ProvisionService) {
		s.notifier = notifier
	}
}

// ProvisionService issues single-use invite artifacts for approved payments.
//
// The central correctness property is idempotency: at most one active grant
// exists per payment, no matter how many times provisioning is triggered.
// A lookup-before-create protocol handles retries and duplicate webhooks; a
// partial unique index on (payment_id) WHERE status=active resolves the
// remaining concurrent race by letting exactly one insert win.
type ProvisionService struct {
	db       *gorm.DB
	gateway  ChatGateway
	audit    *AuditService
	notifier *NotificationService
	log      *zap.Logger
	now      func() time.Time
}

// NewProvisionService constructs a ProvisionService.
func NewProvisionService(db *gorm.DB, gateway ChatGateway, audit *AuditService, opts ...ProvisionOption) (*ProvisionService, error) {
	if db == nil {
		return nil, errors.New("provision service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("provision service: gateway is required")
	}
	if audit == nil {
		return nil, errors.New("provision service: audit service is required")
	}

	service := &ProvisionService{
		db:      db,
		gateway: gateway,
		audit:   audit,
		log:     logger.WithModule("provision"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// ProvisionAccess issues exactly one active single-use invite for the payment.
// Repeat calls return the existing artifact unchanged.
func (s *ProvisionService) ProvisionAccess(ctx context.Context, paymentID, groupID string) (ProvisionResult, error) {
	ctx = ensureContext(ctx)

	if existing, err := s.findActiveGrant(ctx, paymentID); err != nil {
		return ProvisionResult{}, err
	} else if existing != nil {
		return ProvisionResult{GrantID: existing.ID, InviteLink: existing.InviteLink, Reused: true}, nil
	}

	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Plan").First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProvisionResult{}, apperrors.ErrNotFound.WithMessage("payment not found")
		}
		return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("provision: load payment: %w", err))
	}

	if payment.Status != models.PaymentStatusApproved {
		return ProvisionResult{}, apperrors.ErrInvalidState.WithMessage(
			fmt.Sprintf("payment %s is %s, not approved", payment.ID, payment.Status))
	}

	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, "id = ?", payment.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProvisionResult{}, apperrors.ErrNotFound.WithMessage("member not found")
		}
		return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("provision: load member: %w", err))
	}

	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProvisionResult{}, apperrors.ErrNotFound.WithMessage("group not found")
		}
		return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("provision: load group: %w", err))
	}

	link, err := s.gateway.CreateSingleUseInvite(ctx, group.TelegramChatID, "pagamento-"+shortID(payment.ID))
	if err != nil {
		return ProvisionResult{}, apperrors.ErrGateway.WithInternal(fmt.Errorf("provision: create invite: %w", err))
	}

	grant := models.AccessGrant{
		PaymentID:     payment.ID,
		MemberID:      member.ID,
		GroupID:       group.ID,
		InviteLink:    link,
		Status:        models.GrantStatusActive,
		SingleUse:     true,
		MemberName:    member.Name,
		DurationDays:  grantDuration(payment),
		AmountCents:   payment.AmountCents,
		PaymentMethod: payment.Method,
	}

	if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
		// A concurrent call may have won the insert race; its artifact is the
		// grant of record, so revoke ours and hand back the winner's.
		compErr := s.compensateInvite(ctx, group.TelegramChatID, link)

		if isUniqueConstraintError(err) {
			if winner, findErr := s.findActiveGrant(ctx, paymentID); findErr == nil && winner != nil {
				return ProvisionResult{GrantID: winner.ID, InviteLink: winner.InviteLink, Reused: true}, nil
			}
		}

		meta := map[string]any{
			"payment_id":  payment.ID,
			"group_id":    group.ID,
			"invite_link": link,
			"erro":        err.Error(),
		}
		if compErr != nil {
			meta["erro_compensacao"] = compErr.Error()
		}
		if auditErr := s.audit.Log(ctx, AuditEntry{
			Action:   auditActionProvisionError,
			MemberID: &member.ID,
			Actor:    ActorSystem,
			Metadata: meta,
		}); auditErr != nil {
			s.log.Warn("provision: audit failure", zap.String("payment_id", payment.ID), zap.Error(auditErr))
		}

		cause := fmt.Errorf("provision: persist grant: %w", err)
		if compErr != nil {
			// The invite stayed redeemable; the caller must learn which link
			// needs manual revocation.
			cause = multierr.Append(cause, fmt.Errorf("provision: revoke orphaned invite %s: %w", link, compErr))
		}
		return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(cause)
	}

	metrics.InvitesIssued.Inc()

	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionProvisioned,
		MemberID: &member.ID,
		Actor:    ActorSystem,
		Metadata: map[string]any{
			"payment_id":  payment.ID,
			"group_id":    group.ID,
			"invite_link": link,
		},
	}); err != nil {
		s.log.Warn("provision: audit grant", zap.String("grant_id", grant.ID), zap.Error(err))
	}

	return ProvisionResult{GrantID: grant.ID, InviteLink: link}, nil
}

// ApprovePayment transitions a pending payment to approved, extends the
// member's access by the plan duration, provisions the invite, and notifies
// the member. Re-approving an already approved payment is a no-op that still
// returns the existing grant.
func (s *ProvisionService) ApprovePayment(ctx context.Context, paymentID, groupID, actor string) (ProvisionResult, error) {
	ctx = ensureContext(ctx)

	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Plan").First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProvisionResult{}, apperrors.ErrNotFound.WithMessage("payment not found")
		}
		return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("approve: load payment: %w", err))
	}

	switch payment.Status {
	case models.PaymentStatusApproved:
		// Idempotent: fall through to provisioning.
	case models.PaymentStatusPending:
		now := s.now()
		if err := s.db.WithContext(ctx).Model(&payment).Updates(map[string]any{
			"status":      models.PaymentStatusApproved,
			"approved_at": now,
		}).Error; err != nil {
			return ProvisionResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("approve: update payment: %w", err))
		}
		payment.Status = models.PaymentStatusApproved
		payment.ApprovedAt = &now

		if err := s.audit.Log(ctx, AuditEntry{
			Action:   auditActionPaymentApproved,
			MemberID: &payment.MemberID,
			Actor:    actor,
			Metadata: map[string]any{"payment_id": payment.ID, "amount_cents": payment.AmountCents},
		}); err != nil {
			s.log.Warn("approve: audit payment", zap.String("payment_id", payment.ID), zap.Error(err))
		}

		if err := s.extendMemberAccess(ctx, &payment, actor); err != nil {
			return ProvisionResult{}, err
		}
	default:
		return ProvisionResult{}, apperrors.ErrInvalidState.WithMessage(
			fmt.Sprintf("payment %s is %s and cannot be approved", payment.ID, payment.Status))
	}

	result, err := s.ProvisionAccess(ctx, paymentID, groupID)
	if err != nil {
		return ProvisionResult{}, err
	}

	if s.notifier != nil && !result.Reused {
		if _, err := s.notifier.NotifyApprovedAccess(ctx, payment.MemberID, result.InviteLink, grantDuration(payment), payment.ID); err != nil {
			// Notification failures never roll back provisioning.
			s.log.Warn("approve: notify member", zap.String("member_id", payment.MemberID), zap.Error(err))
		}
	}

	return result, nil
}

// MarkInviteUsed marks the grant matching the invite link as consumed.
// Called from the platform webhook when a member joins through the link.
func (s *ProvisionService) MarkInviteUsed(ctx context.Context, inviteLink string) error {
	ctx = ensureContext(ctx)

	var grant models.AccessGrant
	err := s.db.WithContext(ctx).
		Where("invite_link = ? AND status = ?", inviteLink, models.GrantStatusActive).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown or already-consumed link; nothing to record.
			return nil
		}
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("mark used: load grant: %w", err))
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&grant).Updates(map[string]any{
		"status":  models.GrantStatusUsed,
		"used":    true,
		"used_at": now,
	}).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("mark used: update grant: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionInviteUsed,
		MemberID: &grant.MemberID,
		Actor:    ActorSystem,
		Metadata: map[string]any{"grant_id": grant.ID, "payment_id": grant.PaymentID},
	}); err != nil {
		s.log.Warn("mark used: audit", zap.String("grant_id", grant.ID), zap.Error(err))
	}

	return nil
}

// RevokeGrant invalidates an active grant and its external invite link.
func (s *ProvisionService) RevokeGrant(ctx context.Context, grantID, actor string) error {
	ctx = ensureContext(ctx)

	var grant models.AccessGrant
	if err := s.db.WithContext(ctx).Preload("Group").First(&grant, "id = ?", grantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("grant not found")
		}
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("revoke grant: load: %w", err))
	}

	if grant.Status != models.GrantStatusActive {
		return apperrors.ErrInvalidState.WithMessage(
			fmt.Sprintf("grant %s is %s, not active", grant.ID, grant.Status))
	}

	if grant.Group != nil {
		if err := s.gateway.RevokeInvite(ctx, grant.Group.TelegramChatID, grant.InviteLink); err != nil {
			return apperrors.ErrGateway.WithInternal(fmt.Errorf("revoke grant: revoke invite: %w", err))
		}
	}

	if err := s.db.WithContext(ctx).Model(&grant).
		Update("status", models.GrantStatusRevoked).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("revoke grant: update: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionGrantRevoked,
		MemberID: &grant.MemberID,
		Actor:    actor,
		Metadata: map[string]any{"grant_id": grant.ID, "payment_id": grant.PaymentID},
	}); err != nil {
		s.log.Warn("revoke grant: audit", zap.String("grant_id", grant.ID), zap.Error(err))
	}

	return nil
}

// GrantFilters narrows grant listings.
type GrantFilters struct {
	MemberID  string
	PaymentID string
	Status    string
}

// ListGrants returns grants matching the filters, newest first.
func (s *ProvisionService) ListGrants(ctx context.Context, filters GrantFilters) ([]models.AccessGrant, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.AccessGrant{})
	if filters.MemberID != "" {
		query = query.Where("member_id = ?", filters.MemberID)
	}
	if filters.PaymentID != "" {
		query = query.Where("payment_id = ?", filters.PaymentID)
	}
	if filters.Status != "" {
		status, err := models.ParseGrantStatus(filters.Status)
		if err != nil {
			return nil, apperrors.NewValidation(err.Error())
		}
		query = query.Where("status = ?", status)
	}

	var grants []models.AccessGrant
	if err := query.Order("created_at DESC").Find(&grants).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("provision: list grants: %w", err))
	}
	return grants, nil
}

func (s *ProvisionService) findActiveGrant(ctx context.Context, paymentID string) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := s.db.WithContext(ctx).
		Where("payment_id = ? AND status = ?", paymentID, models.GrantStatusActive).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("provision: lookup grant: %w", err))
	}
	return &grant, nil
}

// compensateInvite revokes a just-created invite link after a failed persist
// so no unaccounted-for invite stays redeemable. The error is returned so the
// caller can surface the orphaned link; it is never retried here.
func (s *ProvisionService) compensateInvite(ctx context.Context, chatID int64, link string) error {
	if err := s.gateway.RevokeInvite(ctx, chatID, link); err != nil {
		s.log.Error("provision: compensating invite revocation failed; operator action required",
			zap.String("invite_link", link),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *ProvisionService) extendMemberAccess(ctx context.Context, payment *models.Payment, actor string) error {
	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, "id = ?", payment.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("member not found")
		}
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("approve: load member: %w", err))
	}

	days := grantDuration(*payment)
	now := s.now()

	base := now
	if member.Status == models.MemberStatusActive && member.AccessUntil.After(now) {
		base = member.AccessUntil
	}
	until := base.AddDate(0, 0, days)

	if err := s.db.WithContext(ctx).Model(&member).Updates(map[string]any{
		"status":       models.MemberStatusActive,
		"access_until": until,
	}).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("approve: extend access: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionRenewal,
		MemberID: &member.ID,
		Actor:    actor,
		Metadata: map[string]any{
			"payment_id":   payment.ID,
			"days":         days,
			"access_until": until,
		},
	}); err != nil {
		s.log.Warn("approve: audit renewal", zap.String("member_id", member.ID), zap.Error(err))
	}

	return nil
}

func grantDuration(payment models.Payment) int {
	if payment.Plan != nil && payment.Plan.DurationDays > 0 {
		return payment.Plan.DurationDays
	}
	return defaultGrantDurationDays
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
