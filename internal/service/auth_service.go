package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/lkrent/lkrent-server/internal/domain"
	"github.com/lkrent/lkrent-server/internal/repository"
	"github.com/lkrent/lkrent-server/pkg/auth"
	"github.com/lkrent/lkrent-server/pkg/config"
	"github.com/lkrent/lkrent-server/pkg/events"
	"github.com/lkrent/lkrent-server/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, req *domain.CreateUserRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error)
	UpdateProfile(ctx context.Context, userID int64, req *domain.UpdateProfileRequest) (*domain.UserInfo, error)
	RequestOtp(ctx context.Context, userID int64, purpose string) error
	VerifyOtp(ctx context.Context, userID int64, purpose, code string) error
}

// OtpEngine is the slice of the OTP engine the orchestrator needs.
type OtpEngine interface {
	Request(ctx context.Context, user *domain.User, purpose string) error
	Verify(ctx context.Context, userID int64, purpose, code string) error
}

type authService struct {
	userRepo repository.UserRepository
	otp      OtpEngine
	eventBus events.Publisher
	config   *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	otp OtpEngine,
	eventBus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo: userRepo,
		otp:      otp,
		eventBus: eventBus,
		config:   config,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.CreateUserRequest) (*domain.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Uniqueness is enforced by the store; a duplicate phone surfaces as a
	// ConflictError rather than a pre-check that could race.
	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, err
	}

	token, err := auth.NewAccessToken(user.ID, user.PhoneNumber, s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.UserRegistered, events.UserRegisteredEvent{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		FullName:    user.FullName,
		CreatedAt:   time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish user.registered", "error", err, "user_id", user.ID)
	}

	return &domain.AuthResponse{User: user.ToUserInfo(), Token: token}, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a hash comparison so a missing account is not distinguishable
		// from a wrong password by response or timing.
		_, _ = argon2id.ComparePasswordAndHash(req.Password, dummyHash)
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil || !valid {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, user.PhoneNumber, s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &domain.AuthResponse{User: user.ToUserInfo(), Token: token}, nil
}

func (s *authService) GetUserInfo(ctx context.Context, userID int64) (*domain.UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user.ToUserInfo(), nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID int64, req *domain.UpdateProfileRequest) (*domain.UserInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user.ToUserInfo(), nil
}

func (s *authService) RequestOtp(ctx context.Context, userID int64, purpose string) error {
	if !domain.IsValidPurpose(purpose) {
		return fmt.Errorf("%w: unknown purpose %q", domain.ErrValidation, purpose)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	return s.otp.Request(ctx, user, purpose)
}

func (s *authService) VerifyOtp(ctx context.Context, userID int64, purpose, code string) error {
	if !domain.IsValidPurpose(purpose) {
		return fmt.Errorf("%w: unknown purpose %q", domain.ErrValidation, purpose)
	}
	if len(code) != domain.CodeLength {
		return fmt.Errorf("%w: code must be %d digits", domain.ErrValidation, domain.CodeLength)
	}

	return s.otp.Verify(ctx, userID, purpose, code)
}

// Precomputed argon2id hash of an unguessable value, used to equalize login
// timing for unknown accounts.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=2$o3LNjbpnTOftIGywxbZTeg$Bo2iXUJpcPLLDNZXYGJjd2QMBDLDVLqOvp6UGvER6vE"
