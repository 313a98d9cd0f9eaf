package services

import "github.com/dashpad/authd/internal/models"

// Challenge is returned whenever an OTP has been sent; the client must echo
// VerificationToken together with the OTP to finalize the flow.
type Challenge struct {
	VerificationToken string
	ExpiresIn         string
}

// SessionToken is a freshly minted bearer credential.
type SessionToken struct {
	AccessToken string
	ExpiresIn   string
}

// AuthResult is produced by successful login and registration.
type AuthResult struct {
	User *models.User
	SessionToken
}
