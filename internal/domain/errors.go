package domain

import (
	"errors"
	"fmt"
)

// Caller-visible error kinds. Handlers map these to stable machine codes;
// anything else is reported as an internal error without detail.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoActiveChallenge  = errors.New("no active verification challenge")
	ErrCodeMismatch       = errors.New("verification code does not match")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
	ErrOtpCooldown        = errors.New("verification code recently requested")
	ErrNoEmailOnFile      = errors.New("no email address on file")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// ConflictError reports a uniqueness violation on a user field, decoupling
// callers from the persistence layer's error representation.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
