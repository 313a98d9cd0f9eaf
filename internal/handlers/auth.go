package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dashpad/authd/internal/services"
	"github.com/dashpad/authd/pkg/response"
)

// AuthHandler serves the public registration and login endpoints.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8,max=64"`
}

// verificationRequest is the finalize half of every OTP flow.
type verificationRequest struct {
	VerificationToken string `json:"verificationToken" validate:"required,jwt"`
	OTP               string `json:"otp" validate:"required,numeric,max=12"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username" validate:"omitempty,username"`
	Password string `json:"password" validate:"required,min=8,max=64"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	challenge, err := h.auth.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newChallengePayload(challenge))
}

// PUT /api/auth/register
func (h *AuthHandler) FinalizeRegistration(c *gin.Context) {
	var req verificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.FinalizeRegistration(requestContext(c), req.VerificationToken, req.OTP)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newAuthPayload(result))
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newAuthPayload(result))
}
