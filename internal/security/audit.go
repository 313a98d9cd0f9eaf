package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/app"
	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/internal/services"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretBytes         = 32
	recommendedSecretBytes = 48
	maxSessionTTL          = 7 * 24 * time.Hour
	maxVerificationTTL     = 15 * time.Minute
	minOTPLength           = 6
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates the deployment's credential and OTP settings.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. A nil db degrades the
// registration backlog check to a warning.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := s.cfg
	if cfg == nil {
		cfg = &app.Config{}
	}

	checks := []Check{
		checkJWTSecret(cfg),
		checkSessionTTL(cfg),
		checkVerification(cfg),
		checkMailDelivery(cfg),
		s.checkRegistrationBacklog(ctx, cfg),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func checkJWTSecret(cfg *app.Config) Check {
	length := len(strings.TrimSpace(cfg.Auth.JWT.Secret))

	switch {
	case length == 0:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Set AUTHD_AUTH_JWT_SECRET to a random value of at least 32 bytes.",
		}
	case length < minSecretBytes:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
			Details:     map[string]any{"length": length},
		}
	case length < recommendedSecretBytes:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of AUTHD_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func checkSessionTTL(cfg *app.Config) Check {
	ttl := cfg.Auth.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	// Session tokens cannot be revoked, so their lifetime bounds exposure.
	if ttl > maxSessionTTL {
		return Check{
			ID:          "session_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session token TTL (%s) exceeds recommended maximum (%s).", auth.FormatTTL(ttl), auth.FormatTTL(maxSessionTTL)),
			Remediation: "Reduce auth.jwt.session_ttl; issued tokens stay valid until they expire.",
			Details:     map[string]any{"ttl": auth.FormatTTL(ttl)},
		}
	}

	return Check{
		ID:      "session_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Session token TTL is %s.", auth.FormatTTL(ttl)),
		Details: map[string]any{"ttl": auth.FormatTTL(ttl)},
	}
}

func checkVerification(cfg *app.Config) Check {
	ttl := cfg.Auth.Verification.TTL
	if ttl <= 0 {
		ttl = auth.DefaultVerificationTTL
	}
	length := cfg.Auth.Verification.OTPLength
	details := map[string]any{"ttl": auth.FormatTTL(ttl), "otp_length": length}

	if length > 0 && length < minOTPLength {
		return Check{
			ID:          "otp_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("OTP length %d is guessable.", length),
			Remediation: "Set auth.verification.otp_length to 6 or more.",
			Details:     details,
		}
	}
	if ttl > maxVerificationTTL {
		return Check{
			ID:          "otp_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Verification tokens live for %s; OTPs stay guessable that long.", auth.FormatTTL(ttl)),
			Remediation: "Keep auth.verification.token_ttl at 15m or below.",
			Details:     details,
		}
	}

	return Check{
		ID:      "otp_strength",
		Status:  StatusPass,
		Message: fmt.Sprintf("OTP challenges expire after %s.", auth.FormatTTL(ttl)),
		Details: details,
	}
}

func checkMailDelivery(cfg *app.Config) Check {
	provider := strings.ToLower(strings.TrimSpace(cfg.Email.Provider))
	if provider == "" {
		provider = app.EmailProviderSMTP
	}

	enabled := false
	switch provider {
	case app.EmailProviderSMTP:
		enabled = cfg.Email.SMTP.Enabled
	case app.EmailProviderSES:
		enabled = cfg.Email.SES.Enabled
	}

	if !enabled {
		return Check{
			ID:          "mail_delivery",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Mail provider %q is disabled; OTP emails are dropped.", provider),
			Remediation: "Enable email.smtp or email.ses so users can complete verification flows.",
			Details:     map[string]any{"provider": provider},
		}
	}
	if strings.TrimSpace(cfg.Email.From) == "" {
		return Check{
			ID:          "mail_delivery",
			Status:      StatusFail,
			Message:     "No sender address configured.",
			Remediation: "Set email.from to a verified sender address.",
			Details:     map[string]any{"provider": provider},
		}
	}

	return Check{
		ID:      "mail_delivery",
		Status:  StatusPass,
		Message: fmt.Sprintf("OTP emails are delivered via %s.", provider),
		Details: map[string]any{"provider": provider},
	}
}

// checkRegistrationBacklog flags pending registrations that outlived two sweep
// windows, which means the sweep is not running.
func (s *AuditService) checkRegistrationBacklog(ctx context.Context, cfg *app.Config) Check {
	if s.db == nil {
		return Check{
			ID:          "registration_backlog",
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to inspect pending registrations.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	maxAge := cfg.Maintenance.LeadMaxAge
	if maxAge <= 0 {
		maxAge = services.DefaultLeadMaxAge
	}
	cutoff := s.now().Add(-2 * maxAge)

	var stale int64
	if err := s.db.WithContext(ctx).
		Model(&models.AuthLead{}).
		Where("created_at < ?", cutoff).
		Count(&stale).Error; err != nil {
		return Check{
			ID:          "registration_backlog",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not inspect pending registrations: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if stale > 0 {
		return Check{
			ID:          "registration_backlog",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d pending registrations outlived the sweep window.", stale),
			Remediation: "Confirm the maintenance sweep is scheduled or run `authd sweep`.",
			Details:     map[string]any{"stale": stale},
		}
	}

	return Check{
		ID:      "registration_backlog",
		Status:  StatusPass,
		Message: "No stale pending registrations.",
	}
}
