package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
)

type userRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func (r *userRepository) Create(user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, fullname, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now()
	_, err := r.db.Exec(query, user.ID, user.Username, user.Email, user.Fullname, user.PasswordHash, now)
	if err != nil {
		if _, ok := pqConstraint(err, codeUniqueViolation); ok {
			r.logger.Warn("duplicate username", "username", user.Username)
			return apperrors.ErrDuplicateUser
		}
		r.logger.Error("failed to create user", "username", user.Username, "error", err)
		return translateError(err, "failed to create user")
	}

	user.CreatedAt = now
	return nil
}

func (r *userRepository) GetByID(id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, username, email, fullname, password_hash, created_at
		FROM users WHERE id = $1
	`
	return r.scanUser(query, id)
}

func (r *userRepository) GetByUsername(username string) (*domain.User, error) {
	query := `
		SELECT id, username, email, fullname, password_hash, created_at
		FROM users WHERE username = $1
	`
	return r.scanUser(query, username)
}

func (r *userRepository) scanUser(query string, arg interface{}) (*domain.User, error) {
	var user domain.User

	err := r.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Fullname,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrUserNotFound
		}
		r.logger.Error("failed to get user", "error", err)
		return nil, translateError(err, "failed to get user")
	}
	return &user, nil
}
