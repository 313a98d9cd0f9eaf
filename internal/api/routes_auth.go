package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dashpad/authd/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, handler *handlers.AuthHandler) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", handler.Register)
		auth.PUT("/register", handler.FinalizeRegistration)
		auth.POST("/login", handler.Login)
	}
}
