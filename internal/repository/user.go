package repository

import (
	"context"
	"errors"
	"time"

	"advisor-twin/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// UpdatePassword overwrites the stored password and reports whether a row matched.
	UpdatePassword(ctx context.Context, username, password string) (bool, error)
}

// PasswordResetRepository stores password reset tokens. Rows are never deleted.
type PasswordResetRepository interface {
	Create(ctx context.Context, username, token string, expiresAt time.Time) (*domain.PasswordResetToken, error)
	// GetValid returns the token only if it is unused and expires strictly after now.
	GetValid(ctx context.Context, token string, now time.Time) (*domain.PasswordResetToken, error)
	// MarkUsed flips an unused token to used and reports whether a row changed.
	MarkUsed(ctx context.Context, token string) (bool, error)
}
