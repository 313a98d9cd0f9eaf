package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/dashpad/authd/pkg/errors"
)

func TestNewUserServiceRequiresDependencies(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewUserService(nil, env.jwt)
	require.Error(t, err)
	_, err = NewUserService(env.db, nil)
	require.Error(t, err)
}

func TestChangeUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")
	env.registerAccount(t, "bob", "bob@example.com", "Secret123")

	_, err := env.users.ChangeUsername(ctx, alice.User.ID, "alice")
	require.ErrorIs(t, err, apperrors.ErrSameCurrentUsername)

	_, err = env.users.ChangeUsername(ctx, alice.User.ID, "bob")
	require.ErrorIs(t, err, apperrors.ErrDuplicateUsername)

	session, err := env.users.ChangeUsername(ctx, alice.User.ID, "alice_2")
	require.NoError(t, err)
	require.Equal(t, "24h", session.ExpiresIn)

	claims, err := env.jwt.ValidateAccessToken(session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice_2", claims.Username)
	require.Equal(t, alice.User.ID, claims.UserID())

	oldClaims, err := env.jwt.ValidateAccessToken(alice.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", oldClaims.Username)

	_, err = env.auth.Login(ctx, LoginInput{Username: "alice_2", Password: "Secret123"})
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerAccount(t, "alice", "alice@example.com", "Secret123")

	require.NoError(t, env.users.UpdateProfile(ctx, alice.User.ID, "Alice Liddell"))

	user, err := env.users.GetByID(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice Liddell", user.Name)

	err = env.users.UpdateProfile(ctx, "missing", "Nobody")
	require.ErrorIs(t, err, apperrors.ErrSomethingWrong)
}

func TestGetByIDUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrInvalidUser)

	user, err := env.users.FindByUsername(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, user)
}
