package models

// MaxEmailsPerUser caps how many addresses a single account may link.
const MaxEmailsPerUser = 10

// VerifiedEmailIndex names the unique index that keeps a verified address to one account.
const VerifiedEmailIndex = "idx_user_emails_verified_email"

// UserEmail links an address to an account. An address is unique across
// accounts only once verified: VerifiedEmail mirrors Email while IsVerified
// holds and is NULL otherwise, so its unique index ignores pending rows on
// every supported driver.
type UserEmail struct {
	BaseModel

	UserID        string  `gorm:"type:uuid;not null;uniqueIndex:idx_user_emails_user_email" json:"userId"`
	Email         string  `gorm:"not null;index;uniqueIndex:idx_user_emails_user_email" json:"email"`
	VerifiedEmail *string `gorm:"uniqueIndex:idx_user_emails_verified_email" json:"-"`
	IsVerified    bool    `gorm:"not null;default:false;index" json:"isVerified"`
	IsPrimary     bool    `gorm:"not null;default:false" json:"isPrimary"`

	OTP               *string `json:"-"`
	VerificationToken *string `json:"-"`
}
