package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/pkg/crypto"
	apperrors "github.com/dashpad/authd/pkg/errors"
	"github.com/dashpad/authd/pkg/logger"
	"github.com/dashpad/authd/pkg/metrics"
)

// DefaultLeadMaxAge is how long a pending registration survives before it is swept.
const DefaultLeadMaxAge = 6 * time.Minute

// RegisterInput carries the fields of a new registration.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
}

// LoginInput identifies an account by exactly one of Username or Email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithAuthClock injects a custom time source used by the lead sweep.
func WithAuthClock(clock func() time.Time) AuthOption {
	return func(s *AuthService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLeadMaxAge overrides how old a pending registration must be before it is swept.
func WithLeadMaxAge(d time.Duration) AuthOption {
	return func(s *AuthService) {
		if d > 0 {
			s.leadMaxAge = d
		}
	}
}

// AuthService drives registration and login.
type AuthService struct {
	db         *gorm.DB
	users      *UserService
	verifier   *auth.VerificationService
	notifier   OTPNotifier
	now        func() time.Time
	leadMaxAge time.Duration
	log        *zap.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(db *gorm.DB, users *UserService, verifier *auth.VerificationService, notifier OTPNotifier, opts ...AuthOption) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if users == nil {
		return nil, errors.New("auth service: user service is required")
	}
	if verifier == nil {
		return nil, errors.New("auth service: verification service is required")
	}

	service := &AuthService{
		db:         db,
		users:      users,
		verifier:   verifier,
		notifier:   notifier,
		now:        time.Now,
		leadMaxAge: DefaultLeadMaxAge,
		log:        logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.notifier == nil {
		service.notifier = NewMailNotifier(nil)
	}

	return service, nil
}

// Register records a pending registration and sends its OTP.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (Challenge, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	username := normaliseUsername(input.Username)
	email := normaliseEmail(input.Email)

	if err := ensureAvailable(s.db.WithContext(ctx), username, email); err != nil {
		return Challenge{}, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return Challenge{}, apperrors.Wrap(err, "failed to hash password")
	}

	challenge, err := s.verifier.Issue(map[string]string{
		"email":    email,
		"username": username,
	})
	if err != nil {
		return Challenge{}, apperrors.Wrap(err, "failed to issue verification")
	}

	lead := &models.AuthLead{
		Name:              name,
		Email:             email,
		Username:          username,
		Password:          hashed,
		OTP:               challenge.OTP,
		VerificationToken: challenge.Token,
	}
	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		return Challenge{}, apperrors.Wrap(err, "failed to record registration")
	}
	metrics.VerificationChallenges.WithLabelValues(purposeRegister, "issued").Inc()

	notify(ctx, s.log, purposeRegister, func(ctx context.Context) error {
		return s.notifier.SendEmailVerification(ctx, email, challenge.OTP)
	})

	return Challenge{VerificationToken: challenge.Token, ExpiresIn: s.verifier.ExpiresIn()}, nil
}

// FinalizeRegistration redeems a registration OTP, creating the account and signing it in.
// The pending registration is consumed in the same transaction that creates the account,
// so a replayed or concurrent finalize of the same lead fails with Unauthorized.
// Availability is re-checked inside that transaction, and the unique index on
// verified addresses rejects a concurrent finalize that claimed the email first.
func (s *AuthService) FinalizeRegistration(ctx context.Context, token, otp string) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	claims, err := s.verifier.Verify(token)
	if err != nil {
		metrics.VerificationChallenges.WithLabelValues(purposeRegister, "rejected").Inc()
		return nil, apperrors.ErrUnauthorized.WithInternal(err)
	}

	var lead models.AuthLead
	err = s.db.WithContext(ctx).
		Where("verification_token = ? AND otp = ? AND email = ? AND username = ?",
			token, otp, claims["email"], claims["username"]).
		Take(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.VerificationChallenges.WithLabelValues(purposeRegister, "rejected").Inc()
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load registration")
	}

	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAvailable(tx, lead.Username, lead.Email); err != nil {
			return err
		}

		consumed := tx.Where("id = ? AND verification_token = ? AND otp = ?", lead.ID, token, otp).
			Delete(&models.AuthLead{})
		if consumed.Error != nil {
			return fmt.Errorf("consume registration: %w", consumed.Error)
		}
		if consumed.RowsAffected != 1 {
			return apperrors.ErrUnauthorized
		}

		created, err := s.users.createAccount(tx, lead.Name, lead.Username, lead.Password, lead.Email)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to create account")
	}
	metrics.VerificationChallenges.WithLabelValues(purposeRegister, "verified").Inc()

	session, err := s.users.IssueSession(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, SessionToken: session}, nil
}

// Login authenticates with a username, optionally paired with one of that
// account's verified emails, or with a verified email alone.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	username := normaliseUsername(input.Username)
	email := normaliseEmail(input.Email)
	if username == "" && email == "" {
		return nil, apperrors.ErrInvalidArguments
	}

	var (
		user *models.User
		err  error
	)
	if username != "" {
		user, err = s.users.FindByUsername(ctx, username)
	} else {
		user, err = s.users.FindByVerifiedEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	if user == nil || (username != "" && email != "" && !hasVerifiedEmail(user, email)) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrUnauthorized
	}

	if !verifyPassword(user, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrWrongPassword
	}

	session, err := s.users.IssueSession(user)
	if err != nil {
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &AuthResult{User: user, SessionToken: session}, nil
}

// SweepAuthLeads deletes pending registrations older than the configured maximum age
// and reports how many were removed.
func (s *AuthService) SweepAuthLeads(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.leadMaxAge)

	result := s.db.WithContext(ensureContext(ctx)).
		Where("created_at < ?", cutoff).
		Delete(&models.AuthLead{})
	if result.Error != nil {
		return 0, fmt.Errorf("auth service: sweep leads: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.LeadsSwept.Add(float64(result.RowsAffected))
		s.log.Info("swept expired registrations", zap.Int64("removed", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ensureAvailable checks username and email against existing accounts on db,
// which is an open transaction when called from FinalizeRegistration.
func ensureAvailable(db *gorm.DB, username, email string) error {
	taken, err := usernameTakenIn(db, username)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.ErrDuplicateUsername
	}

	owner, err := verifiedEmailOwnerIn(db, email)
	if err != nil {
		return err
	}
	if owner != "" {
		return apperrors.ErrDuplicateEmail
	}
	return nil
}
