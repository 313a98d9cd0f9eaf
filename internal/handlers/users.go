package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dashpad/authd/internal/services"
	"github.com/dashpad/authd/pkg/response"
)

// UserHandler exposes account, email and password-reset endpoints.
type UserHandler struct {
	users  *services.UserService
	emails *services.EmailService
	resets *services.PasswordResetService
}

func NewUserHandler(users *services.UserService, emails *services.EmailService, resets *services.PasswordResetService) *UserHandler {
	return &UserHandler{users: users, emails: emails, resets: resets}
}

type updateProfileRequest struct {
	Name string `json:"name" validate:"required,min=1,max=50"`
}

type updateUsernameRequest struct {
	Username string `json:"username" validate:"required,username"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type forgotPasswordRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username" validate:"omitempty,username"`
}

type resetPasswordRequest struct {
	verificationRequest
	Password string `json:"password" validate:"required,min=8,max=64"`
}

// GET /api/users/me
func (h *UserHandler) Me(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newUserPayload(user))
}

// PATCH /api/users
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.UpdateProfile(requestContext(c), userID, req.Name); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"isUpdated": true})
}

// PATCH /api/users/username
func (h *UserHandler) UpdateUsername(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req updateUsernameRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.users.ChangeUsername(requestContext(c), userID, req.Username)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newSessionPayload(token))
}

// GET /api/users/emails
func (h *UserHandler) ListEmails(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	emails, err := h.emails.List(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newEmailPayloads(emails))
}

// POST /api/users/email-verification
func (h *UserHandler) InitiateEmailVerification(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	challenge, err := h.emails.InitiateVerification(requestContext(c), userID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newChallengePayload(challenge))
}

// PUT /api/users/email-verification
func (h *UserHandler) FinalizeEmailVerification(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req verificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.emails.FinalizeVerification(requestContext(c), userID, req.VerificationToken, req.OTP); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"isVerified": true})
}

// DELETE /api/users/email
func (h *UserHandler) DeleteEmail(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.emails.Delete(requestContext(c), userID, req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"isDeleted": true})
}

// POST /api/users/update-primary-email
func (h *UserHandler) UpdatePrimaryEmail(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.emails.ChangePrimary(requestContext(c), userID, req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"isUpdated": true})
}

// POST /api/users/forgot-password
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	challenge, err := h.resets.Initiate(requestContext(c), services.ForgotPasswordInput{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newChallengePayload(challenge))
}

// PUT /api/users/forgot-password
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.Finalize(requestContext(c), req.VerificationToken, req.OTP, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"isUpdated": true})
}
