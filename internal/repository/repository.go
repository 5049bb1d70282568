package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user with audit stamp already set
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// All users ordered by id
	ListUsers(ctx context.Context) ([]models.User, error)

	// Persist role, name, email and modification stamp
	// Must return apperrors.ErrUserNotFound if user not found
	// and apperrors.ErrUserAlreadyExists if email is taken by another user
	UpdateUser(ctx context.Context, user models.User) (models.User, error)

	// Return user whose reset token digest matches and expires after 'validAt'
	// Must return apperrors.ErrResetTokenInvalid otherwise
	GetUserByResetToken(ctx context.Context, digest string, validAt time.Time) (models.User, error)

	// Persist user.Refresh (nil clears it) and modification stamp
	// If user not found must return apperrors.ErrUserNotFound
	SetRefreshToken(ctx context.Context, user models.User) error

	// Same as SetRefreshToken but only if stored refresh digest is still 'current'
	// Must return apperrors.ErrRefreshTokenNotFound if it was changed concurrently
	RotateRefreshToken(ctx context.Context, user models.User, current string) error

	// Persist user.Reset and modification stamp
	// If user not found must return apperrors.ErrUserNotFound
	SetResetToken(ctx context.Context, user models.User) error

	// Persist password hash, refresh and reset tokens of the user
	// Only if stored reset digest is still 'current' and expires after 'validAt',
	// must return apperrors.ErrResetTokenInvalid otherwise
	UpdatePassword(ctx context.Context, user models.User, current string, validAt time.Time) error
}

// Revoked access tokens keyed by jti.
// Implementations must be safe for concurrent use and expire entries on their own.
type BlacklistRepo interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Storage groups repositories that share one database connection
type Storage interface {
	User() UserRepo

	// Run fn with storage bound to a transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Minimal time a revoked token stays in blacklist
const MinRevocationTTL = 5 * time.Minute

// RevocationTTL returns how long a token revoked at 'now' must be kept in blacklist.
// It is the token's remaining lifetime but never less than MinRevocationTTL.
func RevocationTTL(expiresAt time.Time, now time.Time) time.Duration {
	return max(expiresAt.Sub(now), MinRevocationTTL)
}
