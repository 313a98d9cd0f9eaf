package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dashpad/authd/internal/models"
)

// schema lists persisted models in dependency order: user_emails references users.
func schema() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserEmail{},
		&models.AuthLead{},
	}
}

// AutoMigrate creates or updates every table, naming the model that failed.
func AutoMigrate(db *gorm.DB) error {
	for _, model := range schema() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return backfillVerifiedEmails(db)
}

// backfillVerifiedEmails fills verified_email for rows verified before the column
// existed. It fails if two accounts already share a verified address.
func backfillVerifiedEmails(db *gorm.DB) error {
	err := db.Model(&models.UserEmail{}).
		Where("is_verified = ? AND verified_email IS NULL", true).
		Update("verified_email", gorm.Expr("email")).Error
	if err != nil {
		return fmt.Errorf("backfill verified emails: %w", err)
	}
	return nil
}
