package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dashpad/authd/internal/app"
	iauth "github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/database/testutil"
	"github.com/dashpad/authd/internal/services"
)

func newDependencies(t *testing.T, metrics bool) Dependencies {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := &app.Config{Server: app.ServerConfig{Metrics: metrics}}
	cfg.Auth.JWT = app.JWTSettings{Secret: "router-test-secret", Issuer: "server", TTL: time.Hour}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	verifier, err := iauth.NewVerificationService(cfg.Auth.VerificationServiceConfig())
	require.NoError(t, err)
	notifier := services.NewMailNotifier(nil)

	users, err := services.NewUserService(db, jwtSvc)
	require.NoError(t, err)
	authSvc, err := services.NewAuthService(db, users, verifier, notifier)
	require.NoError(t, err)
	emails, err := services.NewEmailService(db, users, verifier, notifier)
	require.NoError(t, err)
	resets, err := services.NewPasswordResetService(db, users, verifier, notifier)
	require.NoError(t, err)

	return Dependencies{DB: db, JWT: jwtSvc, Config: cfg, Auth: authSvc, Users: users, Emails: emails, Resets: resets}
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	full := newDependencies(t, false)

	cases := map[string]func(d *Dependencies){
		"db":     func(d *Dependencies) { d.DB = nil },
		"jwt":    func(d *Dependencies) { d.JWT = nil },
		"config": func(d *Dependencies) { d.Config = nil },
		"resets": func(d *Dependencies) { d.Resets = nil },
	}
	for name, strip := range cases {
		t.Run(name, func(t *testing.T) {
			deps := full
			strip(&deps)
			_, err := NewRouter(deps)
			require.Error(t, err)
		})
	}
}

func TestNewRouterMetricsToggle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newDependencies(t, false))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	router, err = NewRouter(newDependencies(t, true))
	require.NoError(t, err)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newDependencies(t, false))
	require.NoError(t, err)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/me"},
		{http.MethodPatch, "/api/users"},
		{http.MethodGet, "/api/users/emails"},
		{http.MethodDelete, "/api/users/email"},
		{http.MethodPost, "/api/users/update-primary-email"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}
