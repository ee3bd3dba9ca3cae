package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"parchment/internal/models"
)

const userColumns = `id, full_name, email, password_hash, COALESCE(refresh_token_hash, ''),
		refresh_expires_at, last_login_at, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, full_name, email, password_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) scanOne(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.RefreshExpiresAt,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// SetRefreshToken unconditionally replaces the stored refresh digest; used at login.
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID string, tokenHash string, expiresAt time.Time, lastLoginAt time.Time) error {
	const query = `
		UPDATE users
		SET refresh_token_hash = $2,
		    refresh_expires_at = $3,
		    last_login_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, userID, tokenHash, expiresAt, lastLoginAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RotateRefreshToken swaps the stored digest only while it still equals
// currentHash, so concurrent rotations of one token cannot both win.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID string, currentHash string, nextHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET refresh_token_hash = $3,
		    refresh_expires_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND refresh_token_hash = $2
	`
	cmd, err := r.db.Exec(ctx, query, userID, currentHash, nextHash, expiresAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *UserRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	const query = `
		UPDATE users
		SET refresh_token_hash = NULL,
		    refresh_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearExpiredRefreshTokens drops refresh digests whose lifetime ended before now.
func (r *UserRepository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET refresh_token_hash = NULL,
		    refresh_expires_at = NULL,
		    updated_at = NOW()
		WHERE refresh_expires_at IS NOT NULL AND refresh_expires_at < $1
	`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
