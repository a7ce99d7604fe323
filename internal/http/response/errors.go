package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lkrent/lkrent-server/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicatePhone     = "DUPLICATE_PHONE"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNoActiveChallenge  = "NO_ACTIVE_CHALLENGE"
	CodeCodeMismatch       = "CODE_MISMATCH"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeOtpCooldown        = "OTP_COOLDOWN"
	CodeNoEmailOnFile      = "NO_EMAIL_ON_FILE"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// FromError maps a domain error to the caller-facing status and machine code.
// Unknown errors become an opaque 500; their detail stays in the logs.
func FromError(w http.ResponseWriter, err error) {
	if ce, ok := domain.AsConflict(err); ok {
		code := CodeDuplicatePhone
		if ce.Field == "email" {
			code = CodeDuplicateEmail
		}
		WriteError(w, http.StatusBadRequest, ce.Error(), code)
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "Invalid credentials", CodeInvalidCredentials)
	case errors.Is(err, domain.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "User not found", CodeNotFound)
	case errors.Is(err, domain.ErrNoActiveChallenge):
		WriteError(w, http.StatusBadRequest, "No active verification challenge. Request a new code.", CodeNoActiveChallenge)
	case errors.Is(err, domain.ErrCodeMismatch):
		WriteError(w, http.StatusBadRequest, "Verification code does not match", CodeCodeMismatch)
	case errors.Is(err, domain.ErrTooManyAttempts):
		WriteError(w, http.StatusBadRequest, "Too many attempts. Request a new code.", CodeTooManyAttempts)
	case errors.Is(err, domain.ErrOtpCooldown):
		WriteError(w, http.StatusTooManyRequests, "A code was recently sent. Try again shortly.", CodeOtpCooldown)
	case errors.Is(err, domain.ErrNoEmailOnFile):
		WriteError(w, http.StatusBadRequest, "No email address on file", CodeNoEmailOnFile)
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError)
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
