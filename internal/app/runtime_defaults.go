package app

import (
	"errors"
	"strings"
	"time"

	"github.com/dashpad/authd/pkg/crypto"
)

const (
	jwtSecretBytes = 48
	leadAgeMargin  = time.Minute
)

// RuntimeChange records a setting filled or corrected at start-up. Values are
// never included so the change can be logged safely.
type RuntimeChange struct {
	Key    string
	Reason string
}

// ApplyRuntimeDefaults fills settings that cannot ship with a static default
// and repairs combinations that would break the verification flows.
func ApplyRuntimeDefaults(cfg *Config) ([]RuntimeChange, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var changes []RuntimeChange

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, errors.Join(errors.New("generate jwt secret"), err)
		}
		cfg.Auth.JWT.Secret = secret
		changes = append(changes, RuntimeChange{
			Key:    "auth.jwt.secret",
			Reason: "generated; sessions and pending challenges will not survive a restart",
		})
	}

	// A lead swept before its token expires makes a valid finalize fail.
	ttl := cfg.Auth.VerificationServiceConfig().TTL
	if age := cfg.Maintenance.LeadMaxAge; age > 0 && age <= ttl {
		cfg.Maintenance.LeadMaxAge = ttl + leadAgeMargin
		changes = append(changes, RuntimeChange{
			Key:    "maintenance.lead_max_age",
			Reason: "raised above auth.verification.token_ttl",
		})
	}

	return changes, nil
}
