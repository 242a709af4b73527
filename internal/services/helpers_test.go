package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
)

// fakeGateway records chat-platform calls and injects failures on demand.
type fakeGateway struct {
	mu sync.Mutex

	revoked        []string
	invitesCreated []string
	invitesRevoked []string
	messages       []string

	revokeErr       error
	createInviteErr error
	revokeInviteErr error
	sendErr         error
}

func (g *fakeGateway) RevokeAccess(_ context.Context, chatID, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.revokeErr != nil {
		return g.revokeErr
	}
	g.revoked = append(g.revoked, fmt.Sprintf("%d:%d", chatID, userID))
	return nil
}

func (g *fakeGateway) CreateSingleUseInvite(_ context.Context, chatID int64, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createInviteErr != nil {
		return "", g.createInviteErr
	}
	link := fmt.Sprintf("https://t.me/+inv-%d-%d", chatID, len(g.invitesCreated)+1)
	g.invitesCreated = append(g.invitesCreated, link)
	_ = name
	return link, nil
}

func (g *fakeGateway) RevokeInvite(_ context.Context, _ int64, link string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.revokeInviteErr != nil {
		return g.revokeInviteErr
	}
	g.invitesRevoked = append(g.invitesRevoked, link)
	return nil
}

func (g *fakeGateway) SendMessage(_ context.Context, chatID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.messages = append(g.messages, fmt.Sprintf("%d:%s", chatID, text))
	return nil
}

func seedMember(t *testing.T, db *gorm.DB, status models.MemberStatus, accessUntil time.Time, telegramID *int64) *models.Member {
	t.Helper()
	member := &models.Member{
		Name:           "Maria Souza",
		Email:          "maria@example.com",
		TelegramUserID: telegramID,
		AccessUntil:    accessUntil,
		Status:         status,
	}
	require.NoError(t, db.Create(member).Error)
	return member
}

func seedGroup(t *testing.T, db *gorm.DB, chatID int64) *models.Group {
	t.Helper()
	group := &models.Group{
		Title:          fmt.Sprintf("Grupo VIP %d", chatID),
		TelegramChatID: chatID,
	}
	require.NoError(t, db.Create(group).Error)
	return group
}

func seedPayment(t *testing.T, db *gorm.DB, memberID string, status models.PaymentStatus, planID *string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		MemberID:    memberID,
		PlanID:      planID,
		AmountCents: 9900,
		Method:      "pix",
		Status:      status,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func seedPlan(t *testing.T, db *gorm.DB, days int) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		Name:         fmt.Sprintf("Plano %d dias", days),
		DurationDays: days,
		PriceCents:   9900,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func auditMetadata(t *testing.T, log models.AuditLog) map[string]any {
	t.Helper()
	if len(log.Metadata) == 0 {
		return nil
	}
	var meta map[string]any
	require.NoError(t, json.Unmarshal(log.Metadata, &meta))
	return meta
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func int64Ptr(v int64) *int64 { return &v }
