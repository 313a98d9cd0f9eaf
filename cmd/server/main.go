package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dashpad/authd/internal/app"
	"github.com/dashpad/authd/internal/security"
	"github.com/dashpad/authd/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "authd",
		Short:         "authd account and authentication backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration directory or file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and background maintenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := prepare(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() // best effort
			return serve(cmd.Context(), cfg)
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "remove expired pending registrations once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := prepare(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() // best effort
			removed, err := sweepOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired registrations\n", removed)
			return nil
		},
	}

	audit := &cobra.Command{
		Use:   "audit",
		Short: "evaluate security-relevant settings and print the report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := prepare(configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() // best effort
			result, err := auditOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	root.AddCommand(serve, sweep, audit)
	return root
}

// prepare loads configuration, configures logging and fills runtime secrets.
func prepare(configPath string) (*app.Config, error) {
	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := app.ConfigureLogging(cfg.Log); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	changes, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.WithModule("bootstrap")
	for _, change := range changes {
		log.Warn("runtime setting adjusted", zap.String("key", change.Key), zap.String("reason", change.Reason))
	}

	return cfg, nil
}

func serve(ctx context.Context, cfg *app.Config) error {
	log := logger.WithModule("bootstrap")

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(log)

	logAudit(security.NewAuditService(stack.DB, cfg).Run(ctx), log)

	if err := stack.Cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: stack.Router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func sweepOnce(ctx context.Context, cfg *app.Config) (int64, error) {
	log := logger.WithModule("bootstrap")

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer stack.Shutdown(log)

	removed, err := stack.Cleaner.RunOnce(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep registrations: %w", err)
	}
	log.Info("registration sweep finished", zap.Int64("removed", removed))
	return removed, nil
}

func auditOnce(ctx context.Context, cfg *app.Config) (security.Result, error) {
	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return security.Result{}, err
	}
	defer closeDatabase(db, log)

	return security.NewAuditService(db, cfg).Run(ctx), nil
}

// logAudit reports failing and warning checks at startup without blocking it.
func logAudit(result security.Result, log *zap.Logger) {
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
