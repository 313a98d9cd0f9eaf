package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpad/authd/internal/models"
	apperrors "github.com/dashpad/authd/pkg/errors"
)

func TestForgotPasswordByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	challenge, err := env.resets.Initiate(ctx, ForgotPasswordInput{Email: "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, "5m", challenge.ExpiresIn)

	sent := env.notifier.lastReset(t)
	require.Equal(t, []string{"alice@example.com"}, sent.To)

	err = env.resets.Finalize(ctx, challenge.VerificationToken, sent.OTP, "Secret123")
	require.ErrorIs(t, err, apperrors.ErrPreviouslyUsedPassword)

	require.NoError(t, env.resets.Finalize(ctx, challenge.VerificationToken, sent.OTP, "NewSecret456"))

	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "NewSecret456"})
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "Secret123"})
	require.ErrorIs(t, err, apperrors.ErrWrongPassword)

	var user models.User
	require.NoError(t, env.db.Where("username = ?", "alice").Take(&user).Error)
	require.Nil(t, user.OTP)
	require.Nil(t, user.VerificationToken)

	err = env.resets.Finalize(ctx, challenge.VerificationToken, sent.OTP, "Another789")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestForgotPasswordByUsernameNotifiesVerifiedEmails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	env.linkEmail(t, alice.User.ID, "alice.work@example.com")
	_, err := env.emails.InitiateVerification(ctx, alice.User.ID, "alice.pending@example.com")
	require.NoError(t, err)

	challenge, err := env.resets.Initiate(ctx, ForgotPasswordInput{Username: "alice"})
	require.NoError(t, err)

	sent := env.notifier.lastReset(t)
	require.ElementsMatch(t, []string{"alice@example.com", "alice.work@example.com"}, sent.To)

	claims, err := env.verifier.Verify(challenge.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, alice.User.ID, claims["userId"])
	require.Equal(t, "alice", claims["username"])
	_, hasEmail := claims["email"]
	require.False(t, hasEmail)

	require.NoError(t, env.resets.Finalize(ctx, challenge.VerificationToken, sent.OTP, "NewSecret456"))
}

func TestForgotPasswordInitiateErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	_, err := env.emails.InitiateVerification(ctx, alice.User.ID, "unverified@example.com")
	require.NoError(t, err)

	_, err = env.resets.Initiate(ctx, ForgotPasswordInput{})
	require.ErrorIs(t, err, apperrors.ErrInvalidArguments)

	_, err = env.resets.Initiate(ctx, ForgotPasswordInput{Username: "alice", Email: "alice@example.com"})
	require.ErrorIs(t, err, apperrors.ErrInvalidArguments)

	_, err = env.resets.Initiate(ctx, ForgotPasswordInput{Username: "nobody"})
	require.ErrorIs(t, err, apperrors.ErrInvalidUsername)

	_, err = env.resets.Initiate(ctx, ForgotPasswordInput{Email: "unverified@example.com"})
	require.ErrorIs(t, err, apperrors.ErrInvalidVerifiedEmail)
}

func TestForgotPasswordFinalizeRejectsWrongOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	challenge, err := env.resets.Initiate(ctx, ForgotPasswordInput{Username: "alice"})
	require.NoError(t, err)
	sent := env.notifier.lastReset(t)

	wrong := "000000"
	if sent.OTP == wrong {
		wrong = "111111"
	}
	err = env.resets.Finalize(ctx, challenge.VerificationToken, wrong, "NewSecret456")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = env.resets.Finalize(ctx, "garbage", sent.OTP, "NewSecret456")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestForgotPasswordSupersededChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	first, err := env.resets.Initiate(ctx, ForgotPasswordInput{Email: "alice@example.com"})
	require.NoError(t, err)
	firstOTP := env.notifier.lastReset(t).OTP

	second, err := env.resets.Initiate(ctx, ForgotPasswordInput{Username: "alice"})
	require.NoError(t, err)
	secondOTP := env.notifier.lastReset(t).OTP

	err = env.resets.Finalize(ctx, first.VerificationToken, firstOTP, "NewSecret456")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	require.NoError(t, env.resets.Finalize(ctx, second.VerificationToken, secondOTP, "NewSecret456"))
}
