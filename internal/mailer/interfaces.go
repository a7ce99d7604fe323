package mailer

import "time"

type Service interface {
	// SendOtpEmail delivers a verification code to the user's email address.
	SendOtpEmail(toEmail, toName, code string, expiresIn time.Duration) error
}
