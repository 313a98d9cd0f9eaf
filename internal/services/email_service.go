package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/models"
	apperrors "github.com/dashpad/authd/pkg/errors"
	"github.com/dashpad/authd/pkg/logger"
	"github.com/dashpad/authd/pkg/metrics"
)

// EmailService manages the addresses linked to an account.
type EmailService struct {
	db       *gorm.DB
	users    *UserService
	verifier *auth.VerificationService
	notifier OTPNotifier
	log      *zap.Logger
}

// NewEmailService constructs an EmailService.
func NewEmailService(db *gorm.DB, users *UserService, verifier *auth.VerificationService, notifier OTPNotifier) (*EmailService, error) {
	if db == nil {
		return nil, errors.New("email service: db is required")
	}
	if users == nil {
		return nil, errors.New("email service: user service is required")
	}
	if verifier == nil {
		return nil, errors.New("email service: verification service is required")
	}
	if notifier == nil {
		notifier = NewMailNotifier(nil)
	}

	return &EmailService{
		db:       db,
		users:    users,
		verifier: verifier,
		notifier: notifier,
		log:      logger.WithModule("email"),
	}, nil
}

// List returns the caller's linked emails, oldest first.
func (s *EmailService) List(ctx context.Context, userID string) ([]models.UserEmail, error) {
	var emails []models.UserEmail
	if err := s.db.WithContext(ensureContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&emails).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to list emails")
	}
	return emails, nil
}

// InitiateVerification links email to the caller (if needed) and sends an OTP to it.
func (s *EmailService) InitiateVerification(ctx context.Context, userID, email string) (Challenge, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Challenge{}, err
	}
	if err := ensureUnclaimed(s.db.WithContext(ctx), userID, email); err != nil {
		return Challenge{}, err
	}

	if !hasUnverified(user.Emails, email) {
		if len(user.Emails) >= models.MaxEmailsPerUser {
			return Challenge{}, apperrors.ErrEmailLimitReached
		}
		record := &models.UserEmail{UserID: userID, Email: email}
		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			return Challenge{}, apperrors.Wrap(err, "failed to link email")
		}
	}

	challenge, err := s.verifier.Issue(map[string]string{
		"email":  email,
		"userId": userID,
	})
	if err != nil {
		return Challenge{}, apperrors.Wrap(err, "failed to issue verification")
	}

	result := s.db.WithContext(ctx).
		Model(&models.UserEmail{}).
		Where("user_id = ? AND email = ? AND is_verified = ?", userID, email, false).
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
	metrics.VerificationChallenges.WithLabelValues(purposeEmail, "issued").Inc()

	notify(ctx, s.log, purposeEmail, func(ctx context.Context) error {
		return s.notifier.SendEmailVerification(ctx, email, challenge.OTP)
	})

	return Challenge{VerificationToken: challenge.Token, ExpiresIn: s.verifier.ExpiresIn()}, nil
}

// FinalizeVerification redeems an email OTP. The address becomes primary only when
// the caller has no primary email yet.
func (s *EmailService) FinalizeVerification(ctx context.Context, userID, token, otp string) error {
	ctx = ensureContext(ctx)

	claims, err := s.verifier.Verify(token)
	if err != nil {
		metrics.VerificationChallenges.WithLabelValues(purposeEmail, "rejected").Inc()
		return apperrors.ErrUnauthorized.WithInternal(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	email := claims["email"]
	if email == "" || claims["userId"] != userID || findEmail(user.Emails, email) == nil {
		metrics.VerificationChallenges.WithLabelValues(purposeEmail, "rejected").Inc()
		return apperrors.ErrUnauthorized
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnclaimed(tx, userID, email); err != nil {
			return err
		}

		var primaries int64
		if err := tx.Model(&models.UserEmail{}).
			Where("user_id = ? AND is_primary = ?", userID, true).
			Count(&primaries).Error; err != nil {
			return fmt.Errorf("count primary emails: %w", err)
		}

		result := tx.Model(&models.UserEmail{}).
			Where("user_id = ? AND email = ? AND is_verified = ? AND otp = ? AND verification_token = ?",
				userID, email, false, otp, token).
			Updates(map[string]any{
				"is_verified":        true,
				"verified_email":     email,
				"is_primary":         primaries == 0,
				"otp":                nil,
				"verification_token": nil,
			})
		if result.Error != nil {
			if isUniqueConstraintError(result.Error) {
				return apperrors.ErrEmailBelongsToSomeoneElse
			}
			return fmt.Errorf("mark email verified: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return apperrors.ErrInvalidOTP
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidOTP) {
			metrics.VerificationChallenges.WithLabelValues(purposeEmail, "rejected").Inc()
		}
		return passThrough(err, "failed to verify email")
	}

	metrics.VerificationChallenges.WithLabelValues(purposeEmail, "verified").Inc()
	return nil
}

// Delete unlinks a non-primary email from the caller.
func (s *EmailService) Delete(ctx context.Context, userID, email string) error {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.Emails) <= 1 {
		return apperrors.ErrMinimumOneEmail
	}

	record := findEmail(user.Emails, email)
	if record == nil {
		return apperrors.ErrInvalidArguments
	}
	if record.IsPrimary {
		return apperrors.ErrCannotDeletePrimaryEmail
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND email = ? AND is_primary = ?", userID, email, false).
		Delete(&models.UserEmail{})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "failed to delete email")
	}
	if result.RowsAffected != 1 {
		return apperrors.ErrSomethingWrong
	}
	return nil
}

// ChangePrimary moves the primary flag to another verified email. Both flag flips
// happen in one transaction; either both apply or neither does.
func (s *EmailService) ChangePrimary(ctx context.Context, userID, email string) error {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	record := findEmail(user.Emails, email)
	if record == nil {
		return apperrors.ErrInvalidArguments
	}
	if record.IsPrimary {
		return apperrors.ErrAlreadyPrimaryEmail
	}
	if !record.IsVerified {
		return apperrors.ErrVerifyEmail
	}

	var current string
	if primary := user.PrimaryEmail(); primary != nil {
		current = primary.Email
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		demoted := tx.Model(&models.UserEmail{}).
			Where("user_id = ? AND email = ? AND is_verified = ? AND is_primary = ?", userID, current, true, true).
			Update("is_primary", false)
		if demoted.Error != nil {
			return fmt.Errorf("demote primary email: %w", demoted.Error)
		}
		if demoted.RowsAffected != 1 {
			return apperrors.ErrSomethingWrong
		}

		promoted := tx.Model(&models.UserEmail{}).
			Where("user_id = ? AND email = ? AND is_verified = ? AND is_primary = ?", userID, email, true, false).
			Update("is_primary", true)
		if promoted.Error != nil {
			return fmt.Errorf("promote primary email: %w", promoted.Error)
		}
		if promoted.RowsAffected != 1 {
			return apperrors.ErrSomethingWrong
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to change primary email")
	}
	return nil
}

// ensureUnclaimed fails when email is already verified by the caller or someone else.
func ensureUnclaimed(db *gorm.DB, userID, email string) error {
	owner, err := verifiedEmailOwnerIn(db, email)
	if err != nil {
		return err
	}
	switch {
	case owner == "":
		return nil
	case owner == userID:
		return apperrors.ErrEmailAlreadyVerified
	default:
		return apperrors.ErrEmailBelongsToSomeoneElse
	}
}

func findEmail(emails []models.UserEmail, email string) *models.UserEmail {
	email = normaliseEmail(email)
	for i := range emails {
		if emails[i].Email == email {
			return &emails[i]
		}
	}
	return nil
}

// hasVerifiedEmail reports whether email is linked to user and verified.
func hasVerifiedEmail(user *models.User, email string) bool {
	record := findEmail(user.Emails, email)
	return record != nil && record.IsVerified
}

func hasUnverified(emails []models.UserEmail, email string) bool {
	record := findEmail(emails, email)
	return record != nil && !record.IsVerified
}
