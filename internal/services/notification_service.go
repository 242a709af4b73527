package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/mail"
)

// NotificationResult reports which delivery channels reached the member.
type NotificationResult struct {
	EmailSent      bool   `json:"email_sent"`
	MessageSent    bool   `json:"message_sent"`
	NotificationID string `json:"notification_id"`
}

// NotificationService tells members about their freshly approved access.
// Delivery is best effort on every channel; failures are logged and never
// propagate into the provisioning flow.
type NotificationService struct {
	db        *gorm.DB
	mailer    mail.Mailer
	messenger Messenger
	log       *zap.Logger
}

// NewNotificationService constructs a NotificationService. Both channels are
// optional; a nil mailer or messenger simply disables that channel.
func NewNotificationService(db *gorm.DB, mailer mail.Mailer, messenger Messenger) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:        db,
		mailer:    mailer,
		messenger: messenger,
		log:       logger.WithModule("notifications"),
	}, nil
}

// NotifyApprovedAccess sends the invite link to the member by email and
// Telegram direct message.
func (s *NotificationService) NotifyApprovedAccess(ctx context.Context, memberID, inviteLink string, durationDays int, paymentID string) (NotificationResult, error) {
	ctx = ensureContext(ctx)
	result := NotificationResult{NotificationID: uuid.NewString()}

	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		return result, fmt.Errorf("notify: load member: %w", err)
	}

	body := fmt.Sprintf(
		"Ola %s!\n\nSeu pagamento foi aprovado e seu acesso ao grupo esta liberado por %d dias.\n\nEntre pelo link (uso unico): %s\n",
		member.Name, durationDays, inviteLink,
	)

	if s.mailer != nil && member.Email != "" {
		msg := mail.Message{
			To:      []string{member.Email},
			Subject: "Acesso liberado",
			Body:    body,
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			if !errors.Is(err, mail.ErrSMTPDisabled) {
				s.log.Warn("notify: email delivery failed",
					zap.String("member_id", member.ID),
					zap.String("payment_id", paymentID),
					zap.Error(err),
				)
			}
		} else {
			result.EmailSent = true
		}
	}

	if s.messenger != nil && member.TelegramUserID != nil {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := s.messenger.SendMessage(sendCtx, *member.TelegramUserID, body)
		cancel()
		if err != nil {
			s.log.Warn("notify: telegram delivery failed",
				zap.String("member_id", member.ID),
				zap.String("payment_id", paymentID),
				zap.Error(err),
			)
		} else {
			result.MessageSent = true
		}
	}

	return result, nil
}
