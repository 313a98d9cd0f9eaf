package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/handlers"
)

// /health answers as long as the process serves HTTP; /api/health also
// requires the database to respond.
func registerHealthRoutes(r *gin.Engine, db *gorm.DB) {
	r.GET("/health", handlers.Liveness)
	r.GET("/api/health", handlers.Health(db))
}
