package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, role_id, name, username, email, password_hash,
	refresh_token, refresh_token_expires_at, reset_token, reset_token_expires_at,
	created_at, created_by, modified_at, modified_by`

const createUser = `-- name: CreateUser
INSERT INTO users (role_id, name, username, email, password_hash, created_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser,
		user.RoleID, user.Name, user.Username, user.Email, user.HashedPassword,
		user.CreatedAt, user.CreatedBy,
	)
	created, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		if isUniqueViolation(err) {
			return created, apperrors.ErrUserAlreadyExists
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listUsers = `-- name: ListUsers
SELECT ` + userColumns + ` FROM users
ORDER BY id
`

func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, listUsers)
	users, err := pgx.CollectRows(rows, rowToUser)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

const updateUser = `-- name: UpdateUser
UPDATE users
SET role_id = $2, name = $3, email = $4, modified_at = $5, modified_by = $6
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateUser,
		user.ID, user.RoleID, user.Name, user.Email, user.ModifiedAt, user.ModifiedBy,
	)
	updated, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, apperrors.ErrUserNotFound
	case isUniqueViolation(err):
		return updated, apperrors.ErrUserAlreadyExists
	default:
		return updated, fmt.Errorf("db error: %w", err)
	}
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return r.getUser(ctx, getUserByID, id)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getUser(ctx, getUserByUsername, username)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE lower(email) = lower($1)
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getUser(ctx, getUserByEmail, email)
}

const getUserByResetToken = `-- name: GetUserByResetToken
SELECT ` + userColumns + ` FROM users
WHERE reset_token = $1 AND reset_token_expires_at > $2
`

func (r *UserRepo) GetUserByResetToken(ctx context.Context, digest string, validAt time.Time) (models.User, error) {
	user, err := r.getUser(ctx, getUserByResetToken, digest, validAt)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return user, apperrors.ErrResetTokenInvalid
	}
	return user, err
}

const setRefreshToken = `-- name: SetRefreshToken
UPDATE users
SET refresh_token = $2, refresh_token_expires_at = $3, modified_at = $4, modified_by = $5
WHERE id = $1
`

func (r *UserRepo) SetRefreshToken(ctx context.Context, user models.User) error {
	digest, expiresAt := tokenArgs(user.Refresh)
	return r.update(ctx, apperrors.ErrUserNotFound, setRefreshToken,
		user.ID, digest, expiresAt, user.ModifiedAt, user.ModifiedBy,
	)
}

const rotateRefreshToken = `-- name: RotateRefreshToken
UPDATE users
SET refresh_token = $2, refresh_token_expires_at = $3, modified_at = $4, modified_by = $5
WHERE id = $1 AND refresh_token = $6
`

func (r *UserRepo) RotateRefreshToken(ctx context.Context, user models.User, current string) error {
	digest, expiresAt := tokenArgs(user.Refresh)
	return r.update(ctx, apperrors.ErrRefreshTokenNotFound, rotateRefreshToken,
		user.ID, digest, expiresAt, user.ModifiedAt, user.ModifiedBy, current,
	)
}

const setResetToken = `-- name: SetResetToken
UPDATE users
SET reset_token = $2, reset_token_expires_at = $3, modified_at = $4, modified_by = $5
WHERE id = $1
`

func (r *UserRepo) SetResetToken(ctx context.Context, user models.User) error {
	digest, expiresAt := tokenArgs(user.Reset)
	return r.update(ctx, apperrors.ErrUserNotFound, setResetToken,
		user.ID, digest, expiresAt, user.ModifiedAt, user.ModifiedBy,
	)
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2,
	refresh_token = $3, refresh_token_expires_at = $4,
	reset_token = $5, reset_token_expires_at = $6,
	modified_at = $7, modified_by = $8
WHERE id = $1 AND reset_token = $9 AND reset_token_expires_at > $10
`

func (r *UserRepo) UpdatePassword(ctx context.Context, user models.User, current string, validAt time.Time) error {
	refresh, refreshExpiresAt := tokenArgs(user.Refresh)
	reset, resetExpiresAt := tokenArgs(user.Reset)
	return r.update(ctx, apperrors.ErrResetTokenInvalid, updatePassword,
		user.ID, user.HashedPassword,
		refresh, refreshExpiresAt,
		reset, resetExpiresAt,
		user.ModifiedAt, user.ModifiedBy,
		current, validAt,
	)
}

func (r *UserRepo) getUser(ctx context.Context, query string, args ...any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

// update runs single row UPDATE and returns 'notMatched' if no row was affected
func (r *UserRepo) update(ctx context.Context, notMatched error, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notMatched
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func tokenArgs(t *models.ExpiringToken) (digest *string, expiresAt *time.Time) {
	if t == nil {
		return nil, nil
	}
	return &t.Digest, &t.ExpiresAt
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var (
		u                                models.User
		refreshDigest, resetDigest       *string
		refreshExpiresAt, resetExpiresAt *time.Time
	)

	err := row.Scan(
		&u.ID, &u.RoleID, &u.Name, &u.Username, &u.Email, &u.HashedPassword,
		&refreshDigest, &refreshExpiresAt, &resetDigest, &resetExpiresAt,
		&u.CreatedAt, &u.CreatedBy, &u.ModifiedAt, &u.ModifiedBy,
	)
	if err != nil {
		return u, err
	}

	if refreshDigest != nil && refreshExpiresAt != nil {
		u.Refresh = &models.ExpiringToken{Digest: *refreshDigest, ExpiresAt: *refreshExpiresAt}
	}
	if resetDigest != nil && resetExpiresAt != nil {
		u.Reset = &models.ExpiringToken{Digest: *resetDigest, ExpiresAt: *resetExpiresAt}
	}

	return u, nil
}
