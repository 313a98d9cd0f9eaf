package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/auth"
	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/pkg/crypto"
	apperrors "github.com/dashpad/authd/pkg/errors"
)

// UserService owns the account store: lookups, profile edits and session issuance.
type UserService struct {
	db  *gorm.DB
	jwt *auth.JWTService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, jwt *auth.JWTService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("user service: jwt service is required")
	}
	return &UserService{db: db, jwt: jwt}, nil
}

// GetByID loads an account together with its linked emails.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.findUser(ensureContext(ctx), s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrInvalidUser
	}
	return user, nil
}

// FindByUsername returns the account holding username, or nil when none does.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ensureContext(ctx), s.db, "username = ?", normaliseUsername(username))
}

// FindByVerifiedEmail resolves an account through one of its verified emails, or nil.
func (s *UserService) FindByVerifiedEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var record models.UserEmail
	err := s.db.WithContext(ctx).
		Where("verified_email = ?", normaliseEmail(email)).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up email")
	}

	return s.findUser(ctx, s.db, "id = ?", record.UserID)
}

// UsernameTaken reports whether any account holds username.
func (s *UserService) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return usernameTakenIn(s.db.WithContext(ensureContext(ctx)), username)
}

// usernameTakenIn runs the username check on db, which may be an open transaction.
func usernameTakenIn(db *gorm.DB, username string) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).
		Where("username = ?", normaliseUsername(username)).
		Count(&count).Error; err != nil {
		return false, apperrors.Wrap(err, "failed to check username")
	}
	return count > 0, nil
}

// verifiedEmailOwnerIn returns the id of the account that verified email, or "".
func verifiedEmailOwnerIn(db *gorm.DB, email string) (string, error) {
	var record models.UserEmail
	err := db.Select("user_id").
		Where("verified_email = ?", normaliseEmail(email)).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, "failed to look up email")
	}
	return record.UserID, nil
}

// IssueSession mints a session token for the account.
func (s *UserService) IssueSession(user *models.User) (SessionToken, error) {
	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
	})
	if err != nil {
		return SessionToken{}, apperrors.Wrap(err, "failed to issue access token")
	}
	return SessionToken{AccessToken: token, ExpiresIn: s.jwt.ExpiresIn()}, nil
}

// ChangeUsername renames the account and returns a session token carrying the new name.
// Tokens issued under the old name remain valid until they expire.
func (s *UserService) ChangeUsername(ctx context.Context, userID, username string) (SessionToken, error) {
	ctx = ensureContext(ctx)
	username = normaliseUsername(username)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return SessionToken{}, err
	}
	if user.Username == username {
		return SessionToken{}, apperrors.ErrSameCurrentUsername
	}

	taken, err := s.UsernameTaken(ctx, username)
	if err != nil {
		return SessionToken{}, err
	}
	if taken {
		return SessionToken{}, apperrors.ErrDuplicateUsername
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("username", username)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return SessionToken{}, apperrors.ErrDuplicateUsername
		}
		return SessionToken{}, apperrors.Wrap(result.Error, "failed to update username")
	}
	if result.RowsAffected != 1 {
		return SessionToken{}, apperrors.ErrSomethingWrong
	}

	user.Username = username
	return s.IssueSession(user)
}

// UpdateProfile changes the account display name.
func (s *UserService) UpdateProfile(ctx context.Context, userID, name string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("name", name)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "failed to update profile")
	}
	if result.RowsAffected != 1 {
		return apperrors.ErrSomethingWrong
	}
	return nil
}

// createAccount inserts an account with a single verified primary email.
// The email row is inserted on its own so a clash on either unique index
// surfaces as an error rather than an association upsert.
func (s *UserService) createAccount(tx *gorm.DB, name, username, passwordHash, email string) (*models.User, error) {
	user := &models.User{
		Name:     name,
		Username: username,
		Password: passwordHash,
	}
	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("user service: create account: %w", err)
	}

	record := models.UserEmail{
		UserID:        user.ID,
		Email:         email,
		VerifiedEmail: &email,
		IsVerified:    true,
		IsPrimary:     true,
	}
	if err := tx.Create(&record).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("user service: create account email: %w", err)
	}
	user.Emails = []models.UserEmail{record}
	return user, nil
}

// verifyPassword reports whether password matches the account hash.
func verifyPassword(user *models.User, password string) bool {
	return crypto.VerifyPassword(user.Password, password)
}

func (s *UserService) findUser(ctx context.Context, db *gorm.DB, query string, args ...any) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).
		Preload("Emails", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Where(query, args...).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load user")
	}
	return &user, nil
}
