package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmartins-dev/telegate/internal/database/testutil"
	"github.com/gmartins-dev/telegate/internal/models"
)

func TestAuditLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	member := seedMember(t, db, models.MemberStatusActive, time.Now().AddDate(0, 0, 30), nil)

	require.NoError(t, audit.Log(context.Background(), AuditEntry{
		Action:   "pagamento_aprovado",
		MemberID: &member.ID,
		Actor:    "admin",
		Metadata: map[string]any{"amount_cents": 9900},
	}))
	require.NoError(t, audit.Log(context.Background(), AuditEntry{
		Action: "removal",
		Actor:  ActorCron,
	}))

	logs, total, err := audit.List(context.Background(), AuditListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, logs, 2)

	byMember, total, err := audit.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{MemberID: member.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, byMember, 1)
	assert.Equal(t, "pagamento_aprovado", byMember[0].Action)
	meta := auditMetadata(t, byMember[0])
	assert.EqualValues(t, 9900, meta["amount_cents"])

	byActor, _, err := audit.List(context.Background(), AuditListOptions{
		Filters: AuditFilters{Actor: ActorCron},
	})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "removal", byActor[0].Action)
}

func TestAuditLogRequiresAction(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, audit.Log(context.Background(), AuditEntry{Actor: "admin"}))
}

func TestAuditLogDefaultsActorToSystem(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	require.NoError(t, audit.Log(context.Background(), AuditEntry{Action: "renovacao"}))

	var stored models.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, ActorSystem, stored.Actor)
}

func TestAuditListPagination(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, audit.Log(context.Background(), AuditEntry{Action: "renovacao"}))
	}

	page, total, err := audit.List(context.Background(), AuditListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)
}
