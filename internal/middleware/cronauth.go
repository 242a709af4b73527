package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/response"
)

// CronAuth guards the scheduler trigger surface with a shared bearer secret.
//
// An empty secret disables the check so local and containerised setups can
// trigger jobs without extra plumbing; production deployments are expected to
// configure one, and the bootstrap logs a warning when they do not.
func CronAuth(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		logger.WithModule("http").Warn("cron trigger endpoints are unauthenticated; set jobs.trigger_secret")
		return func(c *gin.Context) { c.Next() }
	}

	expected := []byte("Bearer " + secret)
	return func(c *gin.Context) {
		header := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(header, expected) != 1 {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
