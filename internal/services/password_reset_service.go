package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/pkg/crypto"
	apperrors "github.com/dashpad/authd/pkg/errors"
	"github.com/dashpad/authd/pkg/logger"
	"github.com/dashpad/authd/pkg/metrics"
)

// ForgotPasswordInput identifies the account by exactly one of Username or Email.
type ForgotPasswordInput struct {
	Username string
	Email    string
}

// PasswordResetService runs the public forgot-password flow.
type PasswordResetService struct {
	db       *gorm.DB
	users    *UserService
	verifier *auth.VerificationService
	notifier OTPNotifier
	log      *zap.Logger
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(db *gorm.DB, users *UserService, verifier *auth.VerificationService, notifier OTPNotifier) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if users == nil {
		return nil, errors.New("password reset service: user service is required")
	}
	if verifier == nil {
		return nil, errors.New("password reset service: verification service is required")
	}
	if notifier == nil {
		notifier = NewMailNotifier(nil)
	}

	return &PasswordResetService{
		db:       db,
		users:    users,
		verifier: verifier,
		notifier: notifier,
		log:      logger.WithModule("password_reset"),
	}, nil
}

// Initiate stores a reset OTP on the account and mails it. When the account was
// identified by username the OTP goes to every verified email on it.
func (s *PasswordResetService) Initiate(ctx context.Context, input ForgotPasswordInput) (Challenge, error) {
	ctx = ensureContext(ctx)

	username := normaliseUsername(input.Username)
	email := normaliseEmail(input.Email)
	if !exactlyOne(username, email) {
		return Challenge{}, apperrors.ErrInvalidArguments
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
		return Challenge{}, err
	}
	if user == nil {
		if username != "" {
			return Challenge{}, apperrors.ErrInvalidUsername
		}
		return Challenge{}, apperrors.ErrInvalidVerifiedEmail
	}

	claims := map[string]string{
		"userId":   user.ID,
		"username": user.Username,
	}
	if email != "" {
		claims["email"] = email
	}
	challenge, err := s.verifier.Issue(claims)
	if err != nil {
		return Challenge{}, apperrors.Wrap(err, "failed to issue verification")
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"otp":                challenge.OTP,
			"verification_token": challenge.Token,
		})
	if result.Error != nil {
		return Challenge{}, apperrors.Wrap(result.Error, "failed to store verification")
	}
	if result.RowsAffected != 1 {
		return Challenge{}, apperrors.ErrSomethingWrong
	}
	metrics.VerificationChallenges.WithLabelValues(purposeReset, "issued").Inc()

	recipients := []string{email}
	if email == "" {
		recipients = recipients[:0]
		for _, linked := range user.Emails {
			if linked.IsVerified {
				recipients = append(recipients, linked.Email)
			}
		}
	}
	notify(ctx, s.log, purposeReset, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, recipients, challenge.OTP)
	})

	return Challenge{VerificationToken: challenge.Token, ExpiresIn: s.verifier.ExpiresIn()}, nil
}

// Finalize redeems a reset OTP and replaces the password.
func (s *PasswordResetService) Finalize(ctx context.Context, token, otp, password string) error {
	ctx = ensureContext(ctx)

	claims, err := s.verifier.Verify(token)
	if err != nil {
		metrics.VerificationChallenges.WithLabelValues(purposeReset, "rejected").Inc()
		return apperrors.ErrUnauthorized.WithInternal(err)
	}

	user, err := s.users.findUser(ctx, s.db,
		"id = ? AND username = ? AND otp = ? AND verification_token = ?",
		claims["userId"], claims["username"], otp, token)
	if err != nil {
		return err
	}
	if user == nil {
		metrics.VerificationChallenges.WithLabelValues(purposeReset, "rejected").Inc()
		return apperrors.ErrUnauthorized
	}

	if verifyPassword(user, password) {
		return apperrors.ErrPreviouslyUsedPassword
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return apperrors.Wrap(err, "failed to hash password")
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND otp = ? AND verification_token = ?", user.ID, otp, token).
		Updates(map[string]any{
			"password":           hashed,
			"otp":                nil,
			"verification_token": nil,
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "failed to update password")
	}
	if result.RowsAffected != 1 {
		metrics.VerificationChallenges.WithLabelValues(purposeReset, "rejected").Inc()
		return apperrors.ErrInvalidOTP
	}

	metrics.VerificationChallenges.WithLabelValues(purposeReset, "verified").Inc()
	return nil
}
