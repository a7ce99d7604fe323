package mailer

import (
	"fmt"
	"time"

	"github.com/lkrent/lkrent-server/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendOtpEmail(toEmail, toName, code string, expiresIn time.Duration) error {
	logger.Info("📧 [DEV MAIL] Verification Code",
		"to", toEmail,
		"name", toName,
		"code", code,
		"expires_in", expiresIn.String(),
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 VERIFICATION CODE (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: Your LKRent verification code\n"+
		"\n"+
		"Code: %s (valid for %s)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, toName, code, expiresIn)

	return nil
}
