package app

import (
	"github.com/dashpad/authd/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the session JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	issuer := c.JWT.Issuer
	if issuer == "" {
		issuer = auth.DefaultIssuer
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         issuer,
		AccessTokenTTL: ttl,
	}
}

// VerificationServiceConfig converts AuthConfig into OTP challenge parameters.
// Verification tokens are signed with the session secret and issuer.
func (c AuthConfig) VerificationServiceConfig() auth.VerificationConfig {
	ttl := c.Verification.TTL
	if ttl <= 0 {
		ttl = auth.DefaultVerificationTTL
	}

	issuer := c.JWT.Issuer
	if issuer == "" {
		issuer = auth.DefaultIssuer
	}

	return auth.VerificationConfig{
		Secret:    c.JWT.Secret,
		Issuer:    issuer,
		TTL:       ttl,
		OTPLength: c.Verification.OTPLength,
	}
}
