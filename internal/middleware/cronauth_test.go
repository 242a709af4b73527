package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newCronAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/cron/expire-members", CronAuth(secret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestCronAuthAcceptsValidBearer(t *testing.T) {
	r := newCronAuthRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/cron/expire-members", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCronAuthRejectsMissingOrWrongToken(t *testing.T) {
	r := newCronAuthRouter("s3cret")

	for _, header := range []string{"", "Bearer wrong", "s3cret", "bearer s3cret"} {
		req := httptest.NewRequest(http.MethodPost, "/api/cron/expire-members", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestCronAuthDisabledWithoutSecret(t *testing.T) {
	r := newCronAuthRouter("")

	req := httptest.NewRequest(http.MethodPost, "/api/cron/expire-members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
