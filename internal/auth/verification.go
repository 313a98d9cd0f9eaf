package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dashpad/authd/pkg/crypto"
)

// DefaultVerificationTTL bounds how long an OTP challenge stays redeemable.
const DefaultVerificationTTL = 5 * time.Minute

// ErrVerificationTokenInvalid is returned for any token that fails signature,
// issuer, algorithm or expiry checks.
var ErrVerificationTokenInvalid = errors.New("verification: token invalid")

var reservedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
}

// VerificationConfig configures the OTP challenge issuer.
type VerificationConfig struct {
	Secret    string
	Issuer    string
	TTL       time.Duration
	OTPLength int
	Clock     func() time.Time
}

// Challenge pairs a one-time code with the signed token that must accompany it.
// The OTP goes to the user out of band; the token goes back to the client.
type Challenge struct {
	OTP   string
	Token string
}

// VerificationService issues and verifies OTP challenge tokens.
type VerificationService struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	otpLength int
	now       func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(cfg VerificationConfig) (*VerificationService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("verification: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	length := cfg.OTPLength
	if length <= 0 {
		length = crypto.DefaultOTPLength
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &VerificationService{
		secret:    []byte(cfg.Secret),
		issuer:    issuer,
		ttl:       ttl,
		otpLength: length,
		now:       now,
	}, nil
}

// ExpiresIn reports the token lifetime in its short human form, e.g. "5m".
func (s *VerificationService) ExpiresIn() string {
	return FormatTTL(s.ttl)
}

// Issue generates a fresh OTP and a signed token carrying claims as flat string fields.
func (s *VerificationService) Issue(claims map[string]string) (Challenge, error) {
	otp, err := crypto.GenerateOTP(s.otpLength)
	if err != nil {
		return Challenge{}, fmt.Errorf("verification: generate otp: %w", err)
	}

	now := s.now()
	mapClaims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	for key, value := range claims {
		if _, reserved := reservedClaims[key]; reserved {
			return Challenge{}, fmt.Errorf("verification: claim %q is reserved", key)
		}
		mapClaims[key] = value
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(s.secret)
	if err != nil {
		return Challenge{}, fmt.Errorf("verification: sign token: %w", err)
	}

	return Challenge{OTP: otp, Token: signed}, nil
}

// Verify checks the token and returns its custom string claims.
func (s *VerificationService) Verify(token string) (map[string]string, error) {
	if token == "" {
		return nil, ErrVerificationTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	mapClaims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, mapClaims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationTokenInvalid, err)
	}

	claims := make(map[string]string, len(mapClaims))
	for key, value := range mapClaims {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		if str, ok := value.(string); ok {
			claims[key] = str
		}
	}
	return claims, nil
}
