package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lkrent/lkrent-server/internal/domain"
)

type ChallengeRepository interface {
	// Upsert stores a fresh challenge, replacing any prior one for the same
	// (user, purpose) pair in a single atomic statement.
	Upsert(ctx context.Context, userID int64, purpose, codeHash string, expiresAt time.Time) error
	Find(ctx context.Context, userID int64, purpose string) (*domain.OtpChallenge, error)
	IncrementAttempts(ctx context.Context, userID int64, purpose string) error
	// Consume marks the challenge used; returns false if it was already
	// consumed or has expired in the meantime.
	Consume(ctx context.Context, userID int64, purpose string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type challengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) ChallengeRepository {
	return &challengeRepository{pool: pool}
}

const challengeCols = `user_id, purpose, code_hash, expires_at, consumed_at, attempts, created_at`

func (r *challengeRepository) Upsert(ctx context.Context, userID int64, purpose, codeHash string, expiresAt time.Time) error {
	const q = `
		INSERT INTO otp_challenges (user_id, purpose, code_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, purpose) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			consumed_at = NULL,
			attempts = 0,
			created_at = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, purpose, codeHash, expiresAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *challengeRepository) Find(ctx context.Context, userID int64, purpose string) (*domain.OtpChallenge, error) {
	const q = `SELECT ` + challengeCols + ` FROM otp_challenges WHERE user_id = $1 AND purpose = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.OtpChallenge
	err := r.pool.QueryRow(ctx, q, userID, purpose).Scan(
		&c.UserID, &c.Purpose, &c.CodeHash, &c.ExpiresAt, &c.ConsumedAt, &c.Attempts, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &c, nil
}

func (r *challengeRepository) IncrementAttempts(ctx context.Context, userID int64, purpose string) error {
	const q = `
		UPDATE otp_challenges
		SET attempts = attempts + 1
		WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, purpose)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *challengeRepository) Consume(ctx context.Context, userID int64, purpose string) (bool, error) {
	const q = `
		UPDATE otp_challenges
		SET consumed_at = now()
		WHERE user_id = $1 AND purpose = $2
		  AND consumed_at IS NULL
		  AND expires_at > now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, purpose)
	if err != nil {
		return false, storeErr(err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *challengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM otp_challenges
		WHERE (consumed_at IS NOT NULL AND consumed_at < now() - interval '1 day')
		   OR (consumed_at IS NULL AND expires_at < now() - interval '1 day')`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, storeErr(err)
	}

	return result.RowsAffected(), nil
}
