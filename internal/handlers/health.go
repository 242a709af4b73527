package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/pkg/response"
)

// Health returns a status payload useful for readiness checks. The database
// ping distinguishes "process up" from "able to serve".
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		if code == http.StatusOK {
			response.Success(c, code, gin.H{"status": status})
			return
		}
		c.JSON(code, gin.H{"success": false, "data": gin.H{"status": status}})
	}
}
