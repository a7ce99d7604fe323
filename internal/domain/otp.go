package domain

import "time"

// OTP purposes tag what a challenge is verifying.
const (
	PurposeEmail = "email"
	PurposePhone = "phone"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

var validPurposes = map[string]bool{
	PurposeEmail: true,
	PurposePhone: true,
}

func IsValidPurpose(purpose string) bool {
	return validPurposes[purpose]
}

// OtpChallenge is the stored record of an outstanding code awaiting
// verification. At most one active challenge exists per (user, purpose);
// a new request supersedes the prior one.
type OtpChallenge struct {
	UserID     int64
	Purpose    string
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	Attempts   int
	CreatedAt  time.Time
}

// Active reports whether the challenge can still be verified.
func (c *OtpChallenge) Active(now time.Time, maxAttempts int) bool {
	if c == nil || c.ConsumedAt != nil {
		return false
	}
	if now.After(c.ExpiresAt) {
		return false
	}
	return c.Attempts < maxAttempts
}

type RequestOtpRequest struct {
	Purpose string `json:"purpose"`
}

type VerifyOtpRequest struct {
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}
