package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/database/testutil"
)

type sentOTP struct {
	To  []string
	OTP string
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []sentOTP
	resets        []sentOTP
	err           error
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, to string, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, sentOTP{To: []string{to}, OTP: otp})
	return n.err
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to []string, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentOTP{To: append([]string(nil), to...), OTP: otp})
	return n.err
}

func (n *recordingNotifier) lastVerification(t *testing.T, to string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.verifications) - 1; i >= 0; i-- {
		if n.verifications[i].To[0] == to {
			return n.verifications[i].OTP
		}
	}
	t.Fatalf("no verification otp sent to %s", to)
	return ""
}

func (n *recordingNotifier) lastReset(t *testing.T) sentOTP {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets)
	return n.resets[len(n.resets)-1]
}

type testEnv struct {
	db       *gorm.DB
	jwt      *auth.JWTService
	verifier *auth.VerificationService
	notifier *recordingNotifier
	users    *UserService
	auth     *AuthService
	emails   *EmailService
	resets   *PasswordResetService
}

func newTestEnv(t *testing.T, opts ...AuthOption) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "session-secret"})
	require.NoError(t, err)
	verifier, err := auth.NewVerificationService(auth.VerificationConfig{Secret: "session-secret"})
	require.NoError(t, err)

	notifier := &recordingNotifier{}

	users, err := NewUserService(db, jwtSvc)
	require.NoError(t, err)
	authSvc, err := NewAuthService(db, users, verifier, notifier, opts...)
	require.NoError(t, err)
	emails, err := NewEmailService(db, users, verifier, notifier)
	require.NoError(t, err)
	resets, err := NewPasswordResetService(db, users, verifier, notifier)
	require.NoError(t, err)

	return &testEnv{
		db:       db,
		jwt:      jwtSvc,
		verifier: verifier,
		notifier: notifier,
		users:    users,
		auth:     authSvc,
		emails:   emails,
		resets:   resets,
	}
}

// registerAccount runs the full registration flow and returns the activated account.
func (e *testEnv) registerAccount(t *testing.T, username, email, password string) *AuthResult {
	t.Helper()
	ctx := context.Background()

	challenge, err := e.auth.Register(ctx, RegisterInput{
		Name:     "Test " + username,
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)

	result, err := e.auth.FinalizeRegistration(ctx, challenge.VerificationToken, e.notifier.lastVerification(t, email))
	require.NoError(t, err)
	return result
}

// linkEmail links and verifies an extra address on the account.
func (e *testEnv) linkEmail(t *testing.T, userID, email string) {
	t.Helper()
	ctx := context.Background()

	challenge, err := e.emails.InitiateVerification(ctx, userID, email)
	require.NoError(t, err)
	require.NoError(t, e.emails.FinalizeVerification(ctx, userID, challenge.VerificationToken, e.notifier.lastVerification(t, email)))
}
