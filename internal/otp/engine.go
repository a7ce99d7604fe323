// Package otp implements the one-time-password exchange: short-lived numeric
// challenges keyed by (user, purpose), where only the newest code is valid
// and a successful verification is single-use.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lkrent/lkrent-server/internal/domain"
	"github.com/lkrent/lkrent-server/internal/mailer"
	"github.com/lkrent/lkrent-server/internal/repository"
	"github.com/lkrent/lkrent-server/pkg/config"
	"github.com/lkrent/lkrent-server/pkg/events"
	"github.com/lkrent/lkrent-server/pkg/logger"
)

// CooldownLimiter throttles how often a fresh challenge may be requested for
// the same (user, purpose) pair.
type CooldownLimiter interface {
	Cooldown(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Engine struct {
	challenges repository.ChallengeRepository
	users      repository.UserRepository
	mailer     mailer.Service
	eventBus   events.Publisher
	limiter    CooldownLimiter
	config     *config.Config
}

func NewEngine(
	challenges repository.ChallengeRepository,
	users repository.UserRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	limiter CooldownLimiter,
	config *config.Config,
) *Engine {
	return &Engine{
		challenges: challenges,
		users:      users,
		mailer:     mailer,
		eventBus:   eventBus,
		limiter:    limiter,
		config:     config,
	}
}

// Request issues a fresh challenge and hands the code off for out-of-band
// delivery. Any prior pending challenge for the same (user, purpose) pair is
// superseded atomically. Request returns once the challenge is durably
// stored; delivery happens in the background and its failure is logged, never
// surfaced.
func (e *Engine) Request(ctx context.Context, user *domain.User, purpose string) error {
	if !domain.IsValidPurpose(purpose) {
		return fmt.Errorf("invalid purpose: %s", purpose)
	}
	if purpose == domain.PurposeEmail && user.Email == nil {
		return domain.ErrNoEmailOnFile
	}

	cooldownKey := fmt.Sprintf("otp_cooldown:%d:%s", user.ID, purpose)
	if ok, err := e.limiter.Cooldown(ctx, cooldownKey, e.config.Otp.RequestCooldown); err == nil && !ok {
		return domain.ErrOtpCooldown
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash verification code: %w", err)
	}

	expiresAt := time.Now().Add(e.config.Otp.Window)

	if err := e.challenges.Upsert(ctx, user.ID, purpose, string(codeHash), expiresAt); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	go e.deliver(user, purpose, code, expiresAt)

	return nil
}

// Verify checks a submitted code against the active challenge. On success the
// challenge is consumed and the matching user verification flag is flipped; a
// replay of the same code then fails with ErrNoActiveChallenge.
func (e *Engine) Verify(ctx context.Context, userID int64, purpose, code string) error {
	if !domain.IsValidPurpose(purpose) {
		return fmt.Errorf("invalid purpose: %s", purpose)
	}

	ch, err := e.challenges.Find(ctx, userID, purpose)
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if ch == nil || ch.ConsumedAt != nil || time.Now().After(ch.ExpiresAt) {
		return domain.ErrNoActiveChallenge
	}
	if ch.Attempts >= e.config.Otp.MaxAttempts {
		return domain.ErrTooManyAttempts
	}

	// bcrypt comparison is constant-consideration; no timing leak on mismatch.
	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)) != nil {
		if err := e.challenges.IncrementAttempts(ctx, userID, purpose); err != nil {
			logger.ErrorContext(ctx, "Failed to record verify attempt", "error", err, "user_id", userID)
		}
		return domain.ErrCodeMismatch
	}

	consumed, err := e.challenges.Consume(ctx, userID, purpose)
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !consumed {
		// Lost the race to a concurrent verify, or expired between load and consume.
		return domain.ErrNoActiveChallenge
	}

	switch purpose {
	case domain.PurposeEmail:
		err = e.users.MarkEmailVerified(ctx, userID)
	case domain.PurposePhone:
		err = e.users.MarkPhoneVerified(ctx, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	if err := e.eventBus.Publish(ctx, events.OtpVerified, events.OtpVerifiedEvent{
		UserID:     userID,
		Purpose:    purpose,
		VerifiedAt: time.Now(),
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish otp.verified", "error", err, "user_id", userID)
	}

	return nil
}

// deliver runs detached from the request; the caller has already been
// answered by the time it executes.
func (e *Engine) deliver(user *domain.User, purpose, code string, expiresAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch purpose {
	case domain.PurposeEmail:
		if err := e.mailer.SendOtpEmail(*user.Email, user.FullName, code, e.config.Otp.Window); err != nil {
			logger.Error("Failed to send verification email", "error", err, "user_id", user.ID)
		}
	case domain.PurposePhone:
		// SMS goes through the notify pipeline.
		if err := e.eventBus.Publish(ctx, events.NotifySend, events.NotificationEvent{
			Channel:   "sms",
			Recipient: user.PhoneNumber,
			Template:  "otp_code",
			Data: map[string]interface{}{
				"code":       code,
				"expires_at": expiresAt,
			},
		}); err != nil {
			logger.Error("Failed to publish SMS notification", "error", err, "user_id", user.ID)
		}
	}

	if err := e.eventBus.Publish(ctx, events.OtpRequested, events.OtpRequestedEvent{
		UserID:    user.ID,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}); err != nil {
		logger.Error("Failed to publish otp.requested", "error", err, "user_id", user.ID)
	}
}

func generateCode() (string, error) {
	max := big.NewInt(1000000) // 6 digits
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
