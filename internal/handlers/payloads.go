package handlers

import (
	"time"

	"github.com/dashpad/authd/internal/models"
	"github.com/dashpad/authd/internal/services"
)

// Response shapes are built explicitly so credential material on the models
// never reaches the wire.

type emailPayload struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	IsPrimary  bool      `json:"isPrimary"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type userPayload struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Username     string         `json:"username"`
	PrimaryEmail *emailPayload  `json:"primaryEmail"`
	Emails       []emailPayload `json:"emails"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type challengePayload struct {
	VerificationToken string `json:"verificationToken"`
	ExpiresIn         string `json:"expiresIn"`
}

type sessionPayload struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   string `json:"expiresIn"`
}

type authPayload struct {
	User        userPayload `json:"user"`
	AccessToken string      `json:"accessToken"`
	ExpiresIn   string      `json:"expiresIn"`
}

func newEmailPayload(email models.UserEmail) emailPayload {
	return emailPayload{
		ID:         email.ID,
		Email:      email.Email,
		IsVerified: email.IsVerified,
		IsPrimary:  email.IsPrimary,
		CreatedAt:  email.CreatedAt,
		UpdatedAt:  email.UpdatedAt,
	}
}

func newEmailPayloads(emails []models.UserEmail) []emailPayload {
	out := make([]emailPayload, 0, len(emails))
	for _, email := range emails {
		out = append(out, newEmailPayload(email))
	}
	return out
}

func newUserPayload(user *models.User) userPayload {
	payload := userPayload{
		ID:        user.ID,
		Name:      user.Name,
		Username:  user.Username,
		Emails:    newEmailPayloads(user.Emails),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if primary := user.PrimaryEmail(); primary != nil {
		p := newEmailPayload(*primary)
		payload.PrimaryEmail = &p
	}
	return payload
}

func newChallengePayload(ch services.Challenge) challengePayload {
	return challengePayload{VerificationToken: ch.VerificationToken, ExpiresIn: ch.ExpiresIn}
}

func newSessionPayload(token services.SessionToken) sessionPayload {
	return sessionPayload{AccessToken: token.AccessToken, ExpiresIn: token.ExpiresIn}
}

func newAuthPayload(result *services.AuthResult) authPayload {
	return authPayload{
		User:        newUserPayload(result.User),
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
	}
}
