package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dashpad/authd/internal/handlers"
)

func registerUserRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, handler *handlers.UserHandler) {
	users := engine.Group("/api/users")

	// Password reset is the only public surface under /users.
	users.POST("/forgot-password", handler.ForgotPassword)
	users.PUT("/forgot-password", handler.ResetPassword)

	authed := users.Group("")
	authed.Use(requireAuth)
	{
		authed.GET("/me", handler.Me)
		authed.PATCH("", handler.UpdateProfile)
		authed.PATCH("/username", handler.UpdateUsername)
		authed.GET("/emails", handler.ListEmails)
		authed.POST("/email-verification", handler.InitiateEmailVerification)
		authed.PUT("/email-verification", handler.FinalizeEmailVerification)
		authed.DELETE("/email", handler.DeleteEmail)
		authed.POST("/update-primary-email", handler.UpdatePrimaryEmail)
	}
}
