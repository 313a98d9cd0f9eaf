package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dashpad/authd/internal/app"
	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/internal/security"
)

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver: " PostgreSQL ",
		Postgres: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     5433,
			Database: "authd",
			Username: "svc",
			Password: " keep spaces ",
			Options:  map[string]string{"sslmode": "require"},
		},
		Pool:      app.PoolConfig{MaxOpen: 8, MaxIdle: 4, MaxLifetime: time.Minute},
		SlowQuery: time.Second,
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "authd", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, " keep spaces ", dbCfg.Password)
	require.Equal(t, "require", dbCfg.Options["sslmode"])
	require.Equal(t, 8, dbCfg.Pool.MaxOpenConns)
	require.Equal(t, 4, dbCfg.Pool.MaxIdleConns)
	require.Equal(t, time.Minute, dbCfg.Pool.ConnMaxLifetime)
	require.Equal(t, time.Second, dbCfg.SlowQueryThreshold)

	cfg = &app.Config{Database: app.DatabaseConfig{Driver: "mysql", MySQL: app.DBAuthConfig{Host: "mysql", Port: 3306}}}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)

	dbCfg = convertDatabaseConfig(&app.Config{Database: app.DatabaseConfig{Path: "./data/x.sqlite"}})
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/x.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)

	dbCfg = convertDatabaseConfig(&app.Config{Database: app.DatabaseConfig{Driver: "oracle"}})
	require.Equal(t, "oracle", dbCfg.Driver)
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := &app.Config{
		Server:   app.ServerConfig{Metrics: true},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "authd.sqlite")},
		Auth: app.AuthConfig{JWT: app.JWTSettings{
			Secret: "bootstrap-secret",
			Issuer: "server",
			TTL:    time.Hour,
		}},
	}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(zap.NewNop()) })

	require.True(t, stack.DB.Migrator().HasTable(&models.AuthLead{}))

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	removed, err := stack.Cleaner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestBootstrapRuntimeRequiresSecret(t *testing.T) {
	_, err := bootstrapRuntime(context.Background(), &app.Config{}, zap.NewNop())
	require.ErrorContains(t, err, "auth.jwt.secret")
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	config := "database:\n  driver: sqlite\n  path: " + filepath.ToSlash(filepath.Join(dir, "authd.sqlite")) + "\n" +
		"auth:\n  jwt:\n    secret: sweep-secret\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sweep", "--config", dir})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "removed 0 expired registrations")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestAuditCommandPrintsReport(t *testing.T) {
	dir := t.TempDir()
	config := "database:\n  driver: sqlite\n  path: " + filepath.ToSlash(filepath.Join(dir, "authd.sqlite")) + "\n" +
		"auth:\n  jwt:\n    secret: short\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"audit", "--config", dir})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var report security.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Checks, 5)
	require.Equal(t, "jwt_secret_strength", report.Checks[0].ID)
	require.Equal(t, security.StatusFail, report.Checks[0].Status)
}
