package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lkrent/lkrent-server/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, userID int64) error
	MarkPhoneVerified(ctx context.Context, userID int64) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, phone_number, email, password_hash, full_name, gender, date_of_birth,
	avatar_url, driving_license_url, email_verified, phone_number_verified,
	driving_license_verified, reward_points, successful_rentals, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.Email, &u.PasswordHash, &u.FullName, &u.Gender, &u.DateOfBirth,
		&u.AvatarURL, &u.DrivingLicenseURL, &u.EmailVerified, &u.PhoneNumberVerified,
		&u.DrivingLicenseVerified, &u.RewardPoints, &u.SuccessfulRentals, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, req *domain.CreateUserRequest, passwordHash string) (*domain.User, error) {
	const q = `
		INSERT INTO users (phone_number, email, password_hash, full_name, gender)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, req.PhoneNumber, req.Email, passwordHash, req.FullName, req.Gender))
	if err != nil {
		if field, ok := conflictField(err); ok {
			return nil, &domain.ConflictError{Field: field}
		}
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone_number = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	// Changing the email address resets its verified flag.
	const q = `
		UPDATE users
		SET
			full_name = COALESCE($2, full_name),
			gender = COALESCE($3, gender),
			date_of_birth = COALESCE($4, date_of_birth),
			avatar_url = COALESCE($5, avatar_url),
			driving_license_url = COALESCE($6, driving_license_url),
			email = COALESCE($7, email),
			email_verified = CASE WHEN $7::text IS NOT NULL AND $7 IS DISTINCT FROM email THEN false ELSE email_verified END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id,
		req.FullName, req.Gender, req.DateOfBirth, req.AvatarURL, req.DrivingLicenseURL, req.Email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if field, ok := conflictField(err); ok {
			return nil, &domain.ConflictError{Field: field}
		}
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, userID int64) error {
	return r.setFlag(ctx, userID, "email_verified")
}

func (r *userRepository) MarkPhoneVerified(ctx context.Context, userID int64) error {
	return r.setFlag(ctx, userID, "phone_number_verified")
}

func (r *userRepository) setFlag(ctx context.Context, userID int64, column string) error {
	q := `UPDATE users SET ` + column + ` = true, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return storeErr(err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// conflictField maps a postgres uniqueness violation to the offending column.
func conflictField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return "phone_number", true
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	default:
		return pgErr.ConstraintName, true
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
