package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/app"
	"github.com/gmartins-dev/telegate/internal/database/testutil"
	"github.com/gmartins-dev/telegate/internal/models"
	"github.com/gmartins-dev/telegate/internal/scheduler"
	"github.com/gmartins-dev/telegate/internal/services"
)

type stubGateway struct {
	invites int
}

func (g *stubGateway) RevokeAccess(context.Context, int64, int64) error { return nil }

func (g *stubGateway) CreateSingleUseInvite(context.Context, int64, string) (string, error) {
	g.invites++
	return fmt.Sprintf("https://t.me/+stub-%d", g.invites), nil
}

func (g *stubGateway) RevokeInvite(context.Context, int64, string) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	gateway := &stubGateway{}

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	sweep, err := services.NewSweepService(db, gateway, audit)
	require.NoError(t, err)
	provision, err := services.NewProvisionService(db, gateway, audit)
	require.NoError(t, err)
	payments, err := services.NewPaymentService(db)
	require.NoError(t, err)
	jobs, err := services.NewJobService(db, scheduler.NopInstaller{}, scheduler.RenderConfig{
		BaseURL: "http://127.0.0.1:8080",
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.Port = 8080
	cfg.Jobs.TriggerSecret = "s3cret"

	router, err := NewRouter(db, cfg, Services{
		Sweep:     sweep,
		Provision: provision,
		Payments:  payments,
		Jobs:      jobs,
	})
	require.NoError(t, err)

	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRouterCronTriggerRequiresSecret(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/cron/expire-members", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterCronTriggerRunsSweepAndRecordsExecution(t *testing.T) {
	router, db := newTestRouter(t)

	member := models.Member{
		Name:        "Expired Member",
		AccessUntil: time.Now().Add(-time.Hour),
		Status:      models.MemberStatusActive,
	}
	require.NoError(t, db.Create(&member).Error)

	w := doJSON(t, router, http.MethodPost, "/api/cron/expire-members", nil, map[string]string{
		"Authorization": "Bearer s3cret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":1`)

	// The seeded registry entry tracked the run.
	var job models.JobDefinition
	require.NoError(t, db.First(&job, "endpoint = ?", "/api/cron/expire-members").Error)
	assert.Equal(t, int64(1), job.TotalRuns)
	assert.Equal(t, int64(1), job.TotalSuccess)
}

func TestRouterMemberLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/members", gin.H{
		"name":        "Maria Souza",
		"email":       "maria@example.com",
		"access_days": 30,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data models.Member `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	w = doJSON(t, router, http.MethodGet, "/api/members?status=active", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Maria Souza")

	w = doJSON(t, router, http.MethodPost, "/api/members/"+created.Data.ID+"/renew", gin.H{"days": 15}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterPaymentApprovalFlow(t *testing.T) {
	router, db := newTestRouter(t)

	member := models.Member{Name: "Maria", AccessUntil: time.Now().AddDate(0, 0, 5), Status: models.MemberStatusActive}
	require.NoError(t, db.Create(&member).Error)
	group := models.Group{Title: "VIP", TelegramChatID: -100100}
	require.NoError(t, db.Create(&group).Error)

	w := doJSON(t, router, http.MethodPost, "/api/payments", gin.H{
		"member_id":    member.ID,
		"amount_cents": 9900,
		"method":       "pix",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data models.Payment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/payments/"+created.Data.ID+"/approve", gin.H{
		"group_id": group.ID,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://t.me/+stub-")

	// Approving again returns the same artifact.
	w = doJSON(t, router, http.MethodPost, "/api/payments/"+created.Data.ID+"/approve", gin.H{
		"group_id": group.ID,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reused":true`)
}

func TestRouterWebhookMarksInviteUsed(t *testing.T) {
	router, db := newTestRouter(t)

	member := models.Member{Name: "Maria", AccessUntil: time.Now().AddDate(0, 0, 5), Status: models.MemberStatusActive}
	require.NoError(t, db.Create(&member).Error)
	group := models.Group{Title: "VIP", TelegramChatID: -100100}
	require.NoError(t, db.Create(&group).Error)
	payment := models.Payment{MemberID: member.ID, AmountCents: 9900, Status: models.PaymentStatusApproved}
	require.NoError(t, db.Create(&payment).Error)
	grant := models.AccessGrant{
		PaymentID:  payment.ID,
		MemberID:   member.ID,
		GroupID:    group.ID,
		InviteLink: "https://t.me/+joinme",
		Status:     models.GrantStatusActive,
		SingleUse:  true,
	}
	require.NoError(t, db.Create(&grant).Error)

	w := doJSON(t, router, http.MethodPost, "/api/webhooks/telegram", gin.H{
		"update_id": 7,
		"chat_member": gin.H{
			"chat":        gin.H{"id": -100100, "type": "supergroup"},
			"from":        gin.H{"id": 42},
			"date":        time.Now().Unix(),
			"invite_link": gin.H{"invite_link": "https://t.me/+joinme"},
			"new_chat_member": gin.H{
				"user":   gin.H{"id": 42},
				"status": "member",
			},
		},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"handled":true`)

	var stored models.AccessGrant
	require.NoError(t, db.First(&stored, "id = ?", grant.ID).Error)
	assert.Equal(t, models.GrantStatusUsed, stored.Status)
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
