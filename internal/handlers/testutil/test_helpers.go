package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/api"
	"github.com/dashpad/authd/internal/app"
	iauth "github.com/dashpad/authd/internal/auth"
	sharedtestutil "github.com/dashpad/authd/internal/database/testutil"
	"github.com/dashpad/authd/internal/services"
	"github.com/dashpad/authd/pkg/mail"
	"github.com/dashpad/authd/pkg/response"
)

// RecordingMailer captures every message handed to it.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a snapshot of the captured messages.
func (m *RecordingMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// LastOTP extracts the OTP from the most recent message addressed to rcpt.
// OTP subjects end in " - <otp>".
func (m *RecordingMailer) LastOTP(t *testing.T, rcpt string) string {
	t.Helper()
	msgs := m.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, to := range msgs[i].To {
			if to != rcpt {
				continue
			}
			idx := strings.LastIndex(msgs[i].Subject, " - ")
			require.NotEqual(t, -1, idx, msgs[i].Subject)
			return msgs[i].Subject[idx+3:]
		}
	}
	t.Fatalf("no message sent to %s", rcpt)
	return ""
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Mailer *RecordingMailer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{Metrics: true},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "server",
				TTL:    24 * time.Hour,
			},
			Verification: app.VerificationSettings{
				TTL:       5 * time.Minute,
				OTPLength: 6,
			},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	verifier, err := iauth.NewVerificationService(cfg.Auth.VerificationServiceConfig())
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	notifier := services.NewMailNotifier(mailer)

	users, err := services.NewUserService(db, jwtSvc)
	require.NoError(t, err)
	authSvc, err := services.NewAuthService(db, users, verifier, notifier)
	require.NoError(t, err)
	emails, err := services.NewEmailService(db, users, verifier, notifier)
	require.NoError(t, err)
	resets, err := services.NewPasswordResetService(db, users, verifier, notifier)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:     db,
		JWT:    jwtSvc,
		Config: cfg,
		Auth:   authSvc,
		Users:  users,
		Emails: emails,
		Resets: resets,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Mailer: mailer,
	}
}

// EmailPayload mirrors the email shape returned by the API.
type EmailPayload struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
	IsPrimary  bool   `json:"isPrimary"`
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Username     string         `json:"username"`
	PrimaryEmail *EmailPayload  `json:"primaryEmail"`
	Emails       []EmailPayload `json:"emails"`
}

// Challenge bundles the response of any OTP-issuing endpoint.
type Challenge struct {
	VerificationToken string `json:"verificationToken"`
	ExpiresIn         string `json:"expiresIn"`
}

// AuthResult bundles the JSON response from login and registration finalize.
type AuthResult struct {
	User        UserPayload `json:"user"`
	AccessToken string      `json:"accessToken"`
	ExpiresIn   string      `json:"expiresIn"`
}

// Register runs both registration steps and returns the activated account.
func (e *Env) Register(name, username, email, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"username": username,
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var challenge Challenge
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &challenge)
	require.NotEmpty(e.T, challenge.VerificationToken)

	w = e.Request(http.MethodPut, "/api/auth/register", map[string]string{
		"verificationToken": challenge.VerificationToken,
		"otp":               e.Mailer.LastOTP(e.T, email),
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var result AuthResult
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	return result
}

// Login authenticates with a username and returns the issued session.
func (e *Env) Login(username, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result AuthResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, username, result.User.Username)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts the recorder holds a failure envelope with the given status and code.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code)
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
