package models

// User is an activated account. Password holds the bcrypt hash; OTP and
// VerificationToken are only set while a password reset is outstanding.
type User struct {
	BaseModel

	Name     string `gorm:"size:50;not null" json:"name"`
	Username string `gorm:"size:30;uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`

	OTP               *string `json:"-"`
	VerificationToken *string `json:"-"`

	Emails []UserEmail `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"emails,omitempty"`
}

// PrimaryEmail returns the account's primary email, if loaded.
func (u *User) PrimaryEmail() *UserEmail {
	for i := range u.Emails {
		if u.Emails[i].IsPrimary {
			return &u.Emails[i]
		}
	}
	return nil
}
