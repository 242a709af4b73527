package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/database/testutil"
	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
)

func TestProvisionAccessIssuesSingleUseInvite(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	plan := seedPlan(t, db, 90)
	member := seedMember(t, db, models.MemberStatusActive, now.AddDate(0, 0, 30), int64Ptr(42))
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, &plan.ID)

	result, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	assert.False(t, result.Reused)
	assert.NotEmpty(t, result.GrantID)
	assert.Contains(t, result.InviteLink, "https://t.me/+inv-")
	require.Len(t, gateway.invitesCreated, 1)

	var grant models.AccessGrant
	require.NoError(t, db.First(&grant, "id = ?", result.GrantID).Error)
	assert.Equal(t, models.GrantStatusActive, grant.Status)
	assert.True(t, grant.SingleUse)
	assert.Equal(t, member.ID, grant.MemberID)
	assert.Equal(t, payment.ID, grant.PaymentID)
	assert.Equal(t, member.Name, grant.MemberName)
	assert.Equal(t, 90, grant.DurationDays)
	assert.Equal(t, int64(9900), grant.AmountCents)

	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", "acesso_provisionado").Find(&logs).Error)
	require.Len(t, logs, 1)
	meta := auditMetadata(t, logs[0])
	assert.Equal(t, payment.ID, meta["payment_id"])
}

func TestProvisionAccessReturnsExistingGrant(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, now.AddDate(0, 0, 30), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	first, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	second, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.GrantID, second.GrantID)
	assert.Equal(t, first.InviteLink, second.InviteLink)

	// Exactly one invite was ever created and exactly one active grant exists.
	assert.Len(t, gateway.invitesCreated, 1)
	var count int64
	require.NoError(t, db.Model(&models.AccessGrant{}).
		Where("payment_id = ? AND status = ?", payment.ID, models.GrantStatusActive).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProvisionAccessRejectsUnapprovedPayment(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 30), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusPending, nil)

	_, err = service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrInvalidState.Code, appErr.Code)

	// Validation happens before any external call; no invite, no grant.
	assert.Empty(t, gateway.invitesCreated)
	var count int64
	require.NoError(t, db.Model(&models.AccessGrant{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProvisionAccessUnknownPayment(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	group := seedGroup(t, db, -100100)

	_, err = service.ProvisionAccess(context.Background(), "00000000-0000-0000-0000-000000000000", group.ID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestProvisionAccessCompensatesInviteOnPersistFailure(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 30), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	// Force the grant insert itself to fail, after the invite was created.
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("fail_grant_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "access_grants" {
			tx.AddError(errors.New("disk I/O error"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("fail_grant_insert") })

	_, err = service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.Error(t, err)

	// The orphaned invite link was revoked so it cannot be redeemed.
	require.Len(t, gateway.invitesCreated, 1)
	require.Len(t, gateway.invitesRevoked, 1)
	assert.Equal(t, gateway.invitesCreated[0], gateway.invitesRevoked[0])

	// The failed provisioning is still on the audit trail.
	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", "erro_provisionamento").Find(&logs).Error)
	require.Len(t, logs, 1)
	meta := auditMetadata(t, logs[0])
	assert.Equal(t, gateway.invitesCreated[0], meta["invite_link"])
	assert.Contains(t, meta["erro"], "disk I/O error")
	assert.NotContains(t, meta, "erro_compensacao")
}

func TestProvisionAccessSurfacesFailedCompensation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{revokeInviteErr: errors.New("link already revoked elsewhere")}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 30), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("fail_grant_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "access_grants" {
			tx.AddError(errors.New("disk I/O error"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("fail_grant_insert") })

	_, err = service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.Error(t, err)

	// Both failures travel in the returned error, naming the link that
	// stayed redeemable.
	require.Len(t, gateway.invitesCreated, 1)
	link := gateway.invitesCreated[0]
	assert.Contains(t, err.Error(), "persist grant")
	assert.Contains(t, err.Error(), "revoke orphaned invite "+link)
	assert.Contains(t, err.Error(), "link already revoked elsewhere")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrPersistence.Code, appErr.Code)

	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", "erro_provisionamento").Find(&logs).Error)
	require.Len(t, logs, 1)
	meta := auditMetadata(t, logs[0])
	assert.Equal(t, link, meta["invite_link"])
	assert.Contains(t, meta["erro_compensacao"], "link already revoked elsewhere")
}

func TestProvisionAccessConcurrentInsertLoserReturnsWinner(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 30), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	// Sneak a competing active grant in between the lookup and the insert, the
	// way a concurrent approval would. The partial unique index makes our
	// insert lose.
	winnerLink := "https://t.me/+winner"
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("competing_grant", func(tx *gorm.DB) {
		if tx.Statement.Table != "access_grants" {
			return
		}
		_ = db.Callback().Create().Remove("competing_grant")
		require.NoError(t, db.Exec(
			`INSERT INTO access_grants (id, payment_id, member_id, group_id, invite_link, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
			"11111111-1111-1111-1111-111111111111",
			payment.ID, member.ID, group.ID, winnerLink,
			time.Now(), time.Now(),
		).Error)
	}))

	result, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	// The caller receives the winner's artifact, and the losing invite link
	// was revoked.
	assert.True(t, result.Reused)
	assert.Equal(t, winnerLink, result.InviteLink)
	require.Len(t, gateway.invitesRevoked, 1)
	assert.Equal(t, gateway.invitesCreated[0], gateway.invitesRevoked[0])

	var count int64
	require.NoError(t, db.Model(&models.AccessGrant{}).
		Where("payment_id = ? AND status = ?", payment.ID, models.GrantStatusActive).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApprovePaymentProvisionsAndExtendsAccess(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	plan := seedPlan(t, db, 30)
	accessUntil := now.AddDate(0, 0, 10)
	member := seedMember(t, db, models.MemberStatusActive, accessUntil, int64Ptr(42))
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusPending, &plan.ID)

	result, err := service.ApprovePayment(context.Background(), payment.ID, group.ID, "admin")
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.NotEmpty(t, result.InviteLink)

	var storedPayment models.Payment
	require.NoError(t, db.First(&storedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusApproved, storedPayment.Status)
	require.NotNil(t, storedPayment.ApprovedAt)

	// Remaining time is preserved: the renewal stacks on the current deadline.
	var storedMember models.Member
	require.NoError(t, db.First(&storedMember, "id = ?", member.ID).Error)
	assert.Equal(t, accessUntil.AddDate(0, 0, 30).Unix(), storedMember.AccessUntil.Unix())
	assert.Equal(t, models.MemberStatusActive, storedMember.Status)

	for _, action := range []string{"pagamento_aprovado", "renovacao", "acesso_provisionado"} {
		var count int64
		require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error)
		assert.Equal(t, int64(1), count, "expected one %s audit entry", action)
	}
}

func TestApprovePaymentReactivatesRemovedMember(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	plan := seedPlan(t, db, 30)
	member := seedMember(t, db, models.MemberStatusRemoved, now.AddDate(0, 0, -5), int64Ptr(42))
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusPending, &plan.ID)

	_, err = service.ApprovePayment(context.Background(), payment.ID, group.ID, "admin")
	require.NoError(t, err)

	// A lapsed membership restarts from approval time, not the old deadline.
	var stored models.Member
	require.NoError(t, db.First(&stored, "id = ?", member.ID).Error)
	assert.Equal(t, models.MemberStatusActive, stored.Status)
	assert.Equal(t, now.AddDate(0, 0, 30).Unix(), stored.AccessUntil.Unix())
}

func TestApprovePaymentIsIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, now.AddDate(0, 0, 10), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusPending, nil)

	first, err := service.ApprovePayment(context.Background(), payment.ID, group.ID, "admin")
	require.NoError(t, err)

	second, err := service.ApprovePayment(context.Background(), payment.ID, group.ID, "admin")
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.InviteLink, second.InviteLink)

	// The duplicate approval neither extends access again nor re-audits.
	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "renovacao").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApprovePaymentRejectsRejectedPayment(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 10), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusRejected, nil)

	_, err = service.ApprovePayment(context.Background(), payment.ID, group.ID, "admin")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrInvalidState.Code, appErr.Code)
	assert.Empty(t, gateway.invitesCreated)
}

func TestMarkInviteUsed(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service, err := NewProvisionService(db, gateway, audit, WithProvisionClock(fixedClock(now)))
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, now.AddDate(0, 0, 10), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	result, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	require.NoError(t, service.MarkInviteUsed(context.Background(), result.InviteLink))

	var grant models.AccessGrant
	require.NoError(t, db.First(&grant, "id = ?", result.GrantID).Error)
	assert.Equal(t, models.GrantStatusUsed, grant.Status)
	assert.True(t, grant.Used)
	require.NotNil(t, grant.UsedAt)

	// A link nobody issued is silently ignored.
	require.NoError(t, service.MarkInviteUsed(context.Background(), "https://t.me/+unknown"))

	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", "convite_utilizado").Find(&logs).Error)
	assert.Len(t, logs, 1)
}

func TestRevokeGrant(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 10), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	result, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	require.NoError(t, service.RevokeGrant(context.Background(), result.GrantID, "admin"))
	require.Len(t, gateway.invitesRevoked, 1)

	var grant models.AccessGrant
	require.NoError(t, db.First(&grant, "id = ?", result.GrantID).Error)
	assert.Equal(t, models.GrantStatusRevoked, grant.Status)

	// Revoking twice is an invalid transition.
	err = service.RevokeGrant(context.Background(), result.GrantID, "admin")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrInvalidState.Code, appErr.Code)
}

func TestRevokeGrantGatewayFailureKeepsGrantActive(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	gateway := &fakeGateway{}
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewProvisionService(db, gateway, audit)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 10), nil)
	group := seedGroup(t, db, -100100)
	payment := seedPayment(t, db, member.ID, models.PaymentStatusApproved, nil)

	result, err := service.ProvisionAccess(context.Background(), payment.ID, group.ID)
	require.NoError(t, err)

	gateway.revokeInviteErr = errors.New("network down")
	err = service.RevokeGrant(context.Background(), result.GrantID, "admin")
	require.Error(t, err)

	// The grant stays active so the revocation can be retried.
	var grant models.AccessGrant
	require.NoError(t, db.First(&grant, "id = ?", result.GrantID).Error)
	assert.Equal(t, models.GrantStatusActive, grant.Status)
}
