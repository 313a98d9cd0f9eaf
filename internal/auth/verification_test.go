package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestVerification(t *testing.T, clock func() time.Time) *VerificationService {
	t.Helper()
	svc, err := NewVerificationService(VerificationConfig{Secret: "verify-secret", Clock: clock})
	require.NoError(t, err)
	return svc
}

func TestNewVerificationServiceRequiresSecret(t *testing.T) {
	_, err := NewVerificationService(VerificationConfig{})
	require.EqualError(t, err, "verification: secret must be provided")
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestVerification(t, nil)
	require.Equal(t, "5m", svc.ExpiresIn())

	challenge, err := svc.Issue(map[string]string{"email": "alice@example.com", "username": "alice"})
	require.NoError(t, err)
	require.Len(t, challenge.OTP, 6)
	require.NotEmpty(t, challenge.Token)

	claims, err := svc.Verify(challenge.Token)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"email": "alice@example.com", "username": "alice"}, claims)
}

func TestIssueRejectsReservedClaims(t *testing.T) {
	svc := newTestVerification(t, nil)
	_, err := svc.Issue(map[string]string{"exp": "never"})
	require.ErrorContains(t, err, "reserved")
}

func TestIssueProducesFreshOTPs(t *testing.T) {
	svc := newTestVerification(t, nil)
	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		challenge, err := svc.Issue(map[string]string{"email": "a@example.com"})
		require.NoError(t, err)
		seen[challenge.Token+challenge.OTP] = struct{}{}
	}
	require.Len(t, seen, 5)
}

func TestVerifyExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestVerification(t, func() time.Time { return current })

	challenge, err := svc.Issue(map[string]string{"email": "a@example.com"})
	require.NoError(t, err)

	current = current.Add(6 * time.Minute)
	_, err = svc.Verify(challenge.Token)
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestVerifyWrongSecretAndIssuer(t *testing.T) {
	svc := newTestVerification(t, nil)

	other, err := NewVerificationService(VerificationConfig{Secret: "other"})
	require.NoError(t, err)
	challenge, err := other.Issue(map[string]string{"email": "a@example.com"})
	require.NoError(t, err)
	_, err = svc.Verify(challenge.Token)
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)

	foreign, err := NewVerificationService(VerificationConfig{Secret: "verify-secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	challenge, err = foreign.Issue(map[string]string{"email": "a@example.com"})
	require.NoError(t, err)
	_, err = svc.Verify(challenge.Token)
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestVerification(t, nil)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"iss":   DefaultIssuer,
		"exp":   time.Now().Add(time.Minute).Unix(),
		"email": "a@example.com",
	}).SignedString([]byte("verify-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)

	_, err = svc.Verify("")
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}
