package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups error codes by the kind of failure they describe.
type Category string

const (
	CategoryArgument      Category = "argument"
	CategoryAuthorization Category = "authorization"
	CategoryConflict      Category = "conflict"
	CategoryState         Category = "state"
	CategoryNotFound      Category = "not_found"
	CategoryInternal      Category = "internal"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Category   Category `json:"-"`
	StatusCode int      `json:"-"`
	Internal   error    `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so copies produced by WithInternal or
// WithMessage still satisfy errors.Is against the catalogue values.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError with a different client message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Generic errors used by the HTTP layer.
var (
	ErrUnauthorized = &AppError{
		Code:       "Unauthorized",
		Message:    "Unauthorized",
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		Category:   CategoryArgument,
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		Category:   CategoryInternal,
		StatusCode: http.StatusInternalServerError,
	}
)

// Account and verification flow errors. Codes are part of the public API.
var (
	ErrInvalidArguments = New("InvalidArguments", "Invalid arguments", CategoryArgument, http.StatusNotAcceptable)
	ErrInvalidUser      = New("InvalidUser", "User does not exist", CategoryNotFound, http.StatusNotFound)
	ErrSomethingWrong   = New("SomethingWentWrong", "Something Went Wrong", CategoryState, http.StatusInternalServerError)
	ErrInvalidUsername  = New("InvalidUsername", "Account does not exist with this username", CategoryNotFound, http.StatusNotFound)
	ErrInvalidVerifiedEmail = New("InvalidVerifiedEmail",
		"Account does not exist with this email or use a verified email to continue", CategoryNotFound, http.StatusNotAcceptable)
	ErrPreviouslyUsedPassword = New("PreviouslyUsedPassword",
		"Please choose a different password as it is previously used", CategoryConflict, http.StatusNotAcceptable)
	ErrSameCurrentUsername = New("SameCurrentUsername",
		"Please choose a different username as it is the same as the current one", CategoryConflict, http.StatusNotAcceptable)
	ErrDuplicateUsername = New("DuplicateUsername", "Username already belongs to someone else", CategoryConflict, http.StatusNotAcceptable)
	ErrDuplicateEmail    = New("DuplicateEmail", "Email already belongs to someone else", CategoryConflict, http.StatusNotAcceptable)
	ErrWrongPassword     = New("WrongPassword", "Password is incorrect", CategoryAuthorization, http.StatusUnauthorized)
	ErrEmailBelongsToSomeoneElse = New("EmailBelongsToSomeoneElse",
		"This email belongs to someone else", CategoryConflict, http.StatusConflict)
	ErrEmailAlreadyVerified = New("EmailAlreadyVerified", "This email is already verified", CategoryConflict, http.StatusConflict)
	ErrEmailLimitReached    = New("CannotLinkMoreThan10Email",
		"Can't link more than 10 emails to a single account", CategoryConflict, http.StatusConflict)
	ErrInvalidOTP               = New("InvalidOtp", "Invalid OTP", CategoryState, http.StatusNotAcceptable)
	ErrCannotDeletePrimaryEmail = New("CanNotDeletePrimaryEmail", "Primary email can not be deleted", CategoryArgument, http.StatusBadRequest)
	ErrMinimumOneEmail          = New("MinimumOneEmailIsRequired",
		"Minimum one email is required to be connected to an account", CategoryArgument, http.StatusBadRequest)
	ErrAlreadyPrimaryEmail = New("AlreadyPrimaryEmail", "Email is already a primary email", CategoryConflict, http.StatusBadRequest)
	ErrVerifyEmail         = New("VerifyEmail", "Please verify this email", CategoryArgument, http.StatusBadRequest)
)

// New builds a new application error with the provided metadata.
func New(code, message string, category Category, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		Category:   CategoryInternal,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
