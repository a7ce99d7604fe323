package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID                     int64      `json:"id"`
	PhoneNumber            string     `json:"phone_number"`
	Email                  *string    `json:"email,omitempty"`
	PasswordHash           string     `json:"-"`
	FullName               string     `json:"full_name"`
	Gender                 string     `json:"gender,omitempty"`
	DateOfBirth            *time.Time `json:"date_of_birth,omitempty"`
	AvatarURL              string     `json:"avatar_url,omitempty"`
	DrivingLicenseURL      string     `json:"driving_license_url,omitempty"`
	EmailVerified          bool       `json:"email_verified"`
	PhoneNumberVerified    bool       `json:"phone_number_verified"`
	DrivingLicenseVerified bool       `json:"driving_license_verified"`
	RewardPoints           int        `json:"reward_points"`
	SuccessfulRentals      int        `json:"number_of_success_rentals"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type CreateUserRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Password    string  `json:"password"`
	FullName    string  `json:"full_name"`
	Email       *string `json:"email,omitempty"`
	Gender      string  `json:"gender,omitempty"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type AuthResponse struct {
	User  *UserInfo `json:"user"`
	Token string    `json:"token"`
}

type UserInfo struct {
	ID                     int64      `json:"id"`
	PhoneNumber            string     `json:"phone_number"`
	Email                  *string    `json:"email,omitempty"`
	FullName               string     `json:"full_name"`
	Gender                 string     `json:"gender,omitempty"`
	DateOfBirth            *time.Time `json:"date_of_birth,omitempty"`
	AvatarURL              string     `json:"avatar_url,omitempty"`
	DrivingLicenseURL      string     `json:"driving_license_url,omitempty"`
	EmailVerified          bool       `json:"email_verified"`
	PhoneNumberVerified    bool       `json:"phone_number_verified"`
	DrivingLicenseVerified bool       `json:"driving_license_verified"`
	RewardPoints           int        `json:"reward_points"`
	SuccessfulRentals      int        `json:"number_of_success_rentals"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type UpdateProfileRequest struct {
	FullName          *string    `json:"full_name,omitempty"`
	Email             *string    `json:"email,omitempty"`
	Gender            *string    `json:"gender,omitempty"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	AvatarURL         *string    `json:"avatar_url,omitempty"`
	DrivingLicenseURL *string    `json:"driving_license_url,omitempty"`
}

// Validation methods
func (r *CreateUserRequest) Validate() error {
	if r.PhoneNumber == "" {
		return fmt.Errorf("phone number is required")
	}
	if !isValidPhone(r.PhoneNumber) {
		return fmt.Errorf("invalid phone number format")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if r.FullName == "" {
		return fmt.Errorf("full name is required")
	}
	if r.Email != nil && !isValidEmail(*r.Email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func (r *LoginRequest) Validate() error {
	if r.PhoneNumber == "" {
		return fmt.Errorf("phone number is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

func (r *UpdateProfileRequest) Validate() error {
	if r.FullName != nil && strings.TrimSpace(*r.FullName) == "" {
		return fmt.Errorf("full name cannot be empty")
	}
	if r.Email != nil && !isValidEmail(*r.Email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// Helper functions
func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

func isValidPhone(phone string) bool {
	phoneRegex := regexp.MustCompile(`^[\+]?[\d\s\-\(\)]+$`)
	return phoneRegex.MatchString(phone) && len(phone) >= 7
}

// Normalize methods
func (r *CreateUserRequest) Normalize() {
	r.PhoneNumber = normalizePhone(r.PhoneNumber)
	r.FullName = strings.TrimSpace(r.FullName)
	if r.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*r.Email))
		if e == "" {
			r.Email = nil
		} else {
			r.Email = &e
		}
	}
}

func (r *LoginRequest) Normalize() {
	r.PhoneNumber = normalizePhone(r.PhoneNumber)
}

func normalizePhone(phone string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(phone)), "")
}

// ToUserInfo converts User to UserInfo (without sensitive data)
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:                     u.ID,
		PhoneNumber:            u.PhoneNumber,
		Email:                  u.Email,
		FullName:               u.FullName,
		Gender:                 u.Gender,
		DateOfBirth:            u.DateOfBirth,
		AvatarURL:              u.AvatarURL,
		DrivingLicenseURL:      u.DrivingLicenseURL,
		EmailVerified:          u.EmailVerified,
		PhoneNumberVerified:    u.PhoneNumberVerified,
		DrivingLicenseVerified: u.DrivingLicenseVerified,
		RewardPoints:           u.RewardPoints,
		SuccessfulRentals:      u.SuccessfulRentals,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}
