package models

// AuthLead is a pending registration awaiting OTP confirmation. Leads are
// consumed on finalize and swept once stale.
type AuthLead struct {
	BaseModel

	Name              string `gorm:"size:50;not null"`
	Email             string `gorm:"not null;index"`
	Username          string `gorm:"size:30;not null;index"`
	Password          string `gorm:"not null"`
	OTP               string `gorm:"not null"`
	VerificationToken string `gorm:"not null"`
}
