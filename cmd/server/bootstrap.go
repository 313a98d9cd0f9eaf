package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/api"
	"github.com/dashpad/authd/internal/app"
	"github.com/dashpad/authd/internal/app/maintenance"
	iauth "github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/database"
	"github.com/dashpad/authd/internal/services"
	"github.com/dashpad/authd/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server and CLI jobs.
type runtimeStack struct {
	DB      *gorm.DB
	Auth    *services.AuthService
	Users   *services.UserService
	Emails  *services.EmailService
	Resets  *services.PasswordResetService
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime opens the database and wires services, maintenance and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return nil, fmt.Errorf("auth.jwt.secret must be configured")
	}

	stack := &runtimeStack{}
	success := false
	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var err error
	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	verifier, err := iauth.NewVerificationService(cfg.Auth.VerificationServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise verification service: %w", err)
	}

	mailer, err := cfg.Email.NewMailer(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	log.Info("mail transport ready", zap.String("provider", cfg.Email.Provider))
	notifier := services.NewMailNotifier(mailer)

	if stack.Users, err = services.NewUserService(stack.DB, jwtSvc); err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	if stack.Auth, err = services.NewAuthService(stack.DB, stack.Users, verifier, notifier,
		services.WithLeadMaxAge(cfg.Maintenance.LeadMaxAge)); err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}
	if stack.Emails, err = services.NewEmailService(stack.DB, stack.Users, verifier, notifier); err != nil {
		return nil, fmt.Errorf("initialise email service: %w", err)
	}
	if stack.Resets, err = services.NewPasswordResetService(stack.DB, stack.Users, verifier, notifier); err != nil {
		return nil, fmt.Errorf("initialise password reset service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Auth, maintenance.WithSweepSchedule(cfg.Maintenance.SweepSchedule))

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:     stack.DB,
		JWT:    jwtSvc,
		Config: cfg,
		Auth:   stack.Auth,
		Users:  stack.Users,
		Emails: stack.Emails,
		Resets: stack.Resets,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and closes the database. Safe on a partially built stack.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}
	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}
	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
		Pool:   database.PoolConfig{
			MaxOpenConns:    cfg.Database.Pool.MaxOpen,
			MaxIdleConns:    cfg.Database.Pool.MaxIdle,
			ConnMaxLifetime: cfg.Database.Pool.MaxLifetime,
		},
		SlowQueryThreshold: cfg.Database.SlowQuery,
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	dbCfg.Options = auth.Options
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

func shutdownTimeout(cfg *app.Config) time.Duration {
	if cfg != nil && cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return defaultShutdownTimeout
}
