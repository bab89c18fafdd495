package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"advisor-twin/internal/domain"
	"advisor-twin/internal/repository"
)

const (
	tokenUsed   = "true"
	tokenUnused = "false"
)

type PasswordResetRepository struct {
	db      DBTX
	dialect Dialect
}

func NewPasswordResetRepository(db DBTX, dialect Dialect) *PasswordResetRepository {
	return &PasswordResetRepository{db: db, dialect: dialect}
}

func (r *PasswordResetRepository) Create(ctx context.Context, username, token string, expiresAt time.Time) (*domain.PasswordResetToken, error) {
	rec := &domain.PasswordResetToken{
		Username:  username,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
INSERT INTO password_reset_tokens (username, token, expires_at, used, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`),
		rec.Username,
		rec.Token,
		rec.ExpiresAt,
		tokenUnused,
		rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert password reset token: %w", err)
	}
	return rec, nil
}

// GetValid filters on the token and used flag in SQL and on expiry in Go:
// sqlite keeps timestamps as text, so comparing them in SQL is not reliable.
func (r *PasswordResetRepository) GetValid(ctx context.Context, token string, now time.Time) (*domain.PasswordResetToken, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
SELECT id, username, token, expires_at, used, created_at
FROM password_reset_tokens
WHERE token = ? AND used = ?`),
		token,
		tokenUnused,
	)

	rec, err := scanResetToken(row)
	if err != nil {
		return nil, err
	}
	if !rec.Valid(now) {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (r *PasswordResetRepository) MarkUsed(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`
UPDATE password_reset_tokens
SET used=?
WHERE token=? AND used=?`),
		tokenUsed,
		token,
		tokenUnused,
	)
	if err != nil {
		return false, fmt.Errorf("mark password reset token used: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset token rows affected: %w", err)
	}
	return aff > 0, nil
}

func scanResetToken(row interface {
	Scan(dest ...any) error
}) (*domain.PasswordResetToken, error) {
	var (
		rec  domain.PasswordResetToken
		used string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Username,
		&rec.Token,
		&rec.ExpiresAt,
		&used,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan password reset token: %w", err)
	}
	rec.Used = used == tokenUsed
	return &rec, nil
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)
