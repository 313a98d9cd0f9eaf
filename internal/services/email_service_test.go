package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpad/authd/internal/models"
	apperrors "github.com/dashpad/authd/pkg/errors"
)

func countPrimaries(t *testing.T, env *testEnv, userID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(&models.UserEmail{}).
		Where("user_id = ? AND is_primary = ?", userID, true).
		Count(&count).Error)
	return count
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	challenge, err := env.emails.InitiateVerification(ctx, alice.User.ID, "alice.work@example.com")
	require.NoError(t, err)
	require.Equal(t, "5m", challenge.ExpiresIn)
	otp := env.notifier.lastVerification(t, "alice.work@example.com")

	claims, err := env.verifier.Verify(challenge.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, alice.User.ID, claims["userId"])
	require.Equal(t, "alice.work@example.com", claims["email"])

	require.NoError(t, env.emails.FinalizeVerification(ctx, alice.User.ID, challenge.VerificationToken, otp))

	emails, err := env.emails.List(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	require.Equal(t, "alice.work@example.com", emails[1].Email)
	require.True(t, emails[1].IsVerified)
	require.False(t, emails[1].IsPrimary)
	require.Nil(t, emails[1].OTP)
	require.Nil(t, emails[1].VerificationToken)
	require.EqualValues(t, 1, countPrimaries(t, env, alice.User.ID))

	err = env.emails.FinalizeVerification(ctx, alice.User.ID, challenge.VerificationToken, otp)
	require.ErrorIs(t, err, apperrors.ErrEmailAlreadyVerified)
}

func TestEmailVerificationReusesUnverifiedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	first, err := env.emails.InitiateVerification(ctx, alice.User.ID, "again@example.com")
	require.NoError(t, err)
	firstOTP := env.notifier.lastVerification(t, "again@example.com")

	second, err := env.emails.InitiateVerification(ctx, alice.User.ID, "again@example.com")
	require.NoError(t, err)
	secondOTP := env.notifier.lastVerification(t, "again@example.com")

	emails, err := env.emails.List(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Len(t, emails, 2)

	if first.VerificationToken != second.VerificationToken || firstOTP != secondOTP {
		err = env.emails.FinalizeVerification(ctx, alice.User.ID, first.VerificationToken, firstOTP)
		require.ErrorIs(t, err, apperrors.ErrInvalidOTP)
	}
	require.NoError(t, env.emails.FinalizeVerification(ctx, alice.User.ID, second.VerificationToken, secondOTP))
}

func TestEmailVerificationRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	bob := env.registerAccount(t, "bob", "bob@example.com", "Secret123")

	challenge, err := env.emails.InitiateVerification(ctx, alice.User.ID, "new@example.com")
	require.NoError(t, err)
	otp := env.notifier.lastVerification(t, "new@example.com")

	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}
	err = env.emails.FinalizeVerification(ctx, alice.User.ID, challenge.VerificationToken, wrong)
	require.ErrorIs(t, err, apperrors.ErrInvalidOTP)

	err = env.emails.FinalizeVerification(ctx, bob.User.ID, challenge.VerificationToken, otp)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = env.emails.FinalizeVerification(ctx, alice.User.ID, "garbage", otp)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = env.emails.InitiateVerification(ctx, alice.User.ID, "alice@example.com")
	require.ErrorIs(t, err, apperrors.ErrEmailAlreadyVerified)

	_, err = env.emails.InitiateVerification(ctx, alice.User.ID, "bob@example.com")
	require.ErrorIs(t, err, apperrors.ErrEmailBelongsToSomeoneElse)
}

func TestEmailVerificationLosesRaceToOtherAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	bob := env.registerAccount(t, "bob", "bob@example.com", "Secret123")

	challenge, err := env.emails.InitiateVerification(ctx, alice.User.ID, "contested@example.com")
	require.NoError(t, err)
	otp := env.notifier.lastVerification(t, "contested@example.com")

	env.linkEmail(t, bob.User.ID, "contested@example.com")

	err = env.emails.FinalizeVerification(ctx, alice.User.ID, challenge.VerificationToken, otp)
	require.ErrorIs(t, err, apperrors.ErrEmailBelongsToSomeoneElse)

	var claimed []models.UserEmail
	require.NoError(t, env.db.Where("verified_email = ?", "contested@example.com").Find(&claimed).Error)
	require.Len(t, claimed, 1)
	require.Equal(t, bob.User.ID, claimed[0].UserID)
}

func TestEmailVerificationPromotesWhenNoPrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	require.NoError(t, env.db.Model(&models.UserEmail{}).
		Where("user_id = ?", alice.User.ID).
		Update("is_primary", false).Error)

	env.linkEmail(t, alice.User.ID, "fallback@example.com")

	emails, err := env.emails.List(ctx, alice.User.ID)
	require.NoError(t, err)
	require.True(t, emails[1].IsPrimary)
	require.EqualValues(t, 1, countPrimaries(t, env, alice.User.ID))
}

func TestEmailLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	for i := 1; i < models.MaxEmailsPerUser; i++ {
		_, err := env.emails.InitiateVerification(ctx, alice.User.ID, fmt.Sprintf("extra%d@example.com", i))
		require.NoError(t, err)
	}

	_, err := env.emails.InitiateVerification(ctx, alice.User.ID, "one-too-many@example.com")
	require.ErrorIs(t, err, apperrors.ErrEmailLimitReached)

	_, err = env.emails.InitiateVerification(ctx, alice.User.ID, "extra1@example.com")
	require.NoError(t, err)
}

func TestDeleteEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	err := env.emails.Delete(ctx, alice.User.ID, "alice@example.com")
	require.ErrorIs(t, err, apperrors.ErrMinimumOneEmail)

	env.linkEmail(t, alice.User.ID, "second@example.com")

	err = env.emails.Delete(ctx, alice.User.ID, "alice@example.com")
	require.ErrorIs(t, err, apperrors.ErrCannotDeletePrimaryEmail)

	err = env.emails.Delete(ctx, alice.User.ID, "unknown@example.com")
	require.ErrorIs(t, err, apperrors.ErrInvalidArguments)

	require.NoError(t, env.emails.Delete(ctx, alice.User.ID, "second@example.com"))

	emails, err := env.emails.List(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	require.Equal(t, "alice@example.com", emails[0].Email)
}

func TestChangePrimaryEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	env.linkEmail(t, alice.User.ID, "verified@example.com")
	_, err := env.emails.InitiateVerification(ctx, alice.User.ID, "pending@example.com")
	require.NoError(t, err)

	err = env.emails.ChangePrimary(ctx, alice.User.ID, "pending@example.com")
	require.ErrorIs(t, err, apperrors.ErrVerifyEmail)

	err = env.emails.ChangePrimary(ctx, alice.User.ID, "alice@example.com")
	require.ErrorIs(t, err, apperrors.ErrAlreadyPrimaryEmail)

	err = env.emails.ChangePrimary(ctx, alice.User.ID, "missing@example.com")
	require.ErrorIs(t, err, apperrors.ErrInvalidArguments)

	require.NoError(t, env.emails.ChangePrimary(ctx, alice.User.ID, "verified@example.com"))

	user, err := env.users.GetByID(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Equal(t, "verified@example.com", user.PrimaryEmail().Email)
	require.EqualValues(t, 1, countPrimaries(t, env, alice.User.ID))
}

func TestChangePrimaryEmailRollsBackWithoutCurrentPrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	env.linkEmail(t, alice.User.ID, "verified@example.com")

	require.NoError(t, env.db.Model(&models.UserEmail{}).
		Where("user_id = ?", alice.User.ID).
		Update("is_primary", false).Error)

	err := env.emails.ChangePrimary(ctx, alice.User.ID, "verified@example.com")
	require.ErrorIs(t, err, apperrors.ErrSomethingWrong)
	require.Zero(t, countPrimaries(t, env, alice.User.ID))
}
