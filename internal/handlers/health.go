package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dashpad/authd/pkg/errors"
	"github.com/dashpad/authd/pkg/response"
)

// Liveness always reports ok.
func Liveness(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Health reports readiness, pinging the database when one is supplied.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				response.Error(c, errors.Wrap(err, "database unavailable"))
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": db != nil})
	}
}
