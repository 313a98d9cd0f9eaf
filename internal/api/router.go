package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/app"
	iauth "github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/handlers"
	"github.com/dashpad/authd/internal/middleware"
	"github.com/dashpad/authd/internal/services"
)

// Dependencies bundles everything the router needs to serve requests.
type Dependencies struct {
	DB     *gorm.DB
	JWT    *iauth.JWTService
	Config *app.Config

	Auth   *services.AuthService
	Users  *services.UserService
	Emails *services.EmailService
	Resets *services.PasswordResetService
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Auth == nil || d.Users == nil || d.Emails == nil || d.Resets == nil:
		return fmt.Errorf("account services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, deps.DB)

	requireAuth := middleware.Auth(deps.JWT)

	registerAuthRoutes(r, handlers.NewAuthHandler(deps.Auth))
	registerUserRoutes(r, requireAuth, handlers.NewUserHandler(deps.Users, deps.Emails, deps.Resets))

	if deps.Config.Server.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
