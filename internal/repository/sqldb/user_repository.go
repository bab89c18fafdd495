package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"advisor-twin/internal/domain"
	"advisor-twin/internal/repository"
)

// ErrUserExists is returned by Create when the username is already taken.
var ErrUserExists = errors.New("user already exists")

type UserRepository struct {
	db      DBTX
	dialect Dialect
}

func NewUserRepository(db DBTX, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
INSERT INTO users (username, password, created_at, updated_at)
VALUES (?, ?, ?, ?)
RETURNING id`),
		user.Username,
		user.Password,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, user.Username)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return id, nil
}

// GetByUsername matches the account name case-insensitively; rows seeded
// out of band keep whatever casing they were written with.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
SELECT id, username, password, created_at, updated_at
FROM users
WHERE lower(username) = lower(?)
ORDER BY id
LIMIT 1`),
		username,
	)
	return scanUser(row)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, username, password string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`
UPDATE users
SET password=?, updated_at=?
WHERE lower(username)=lower(?)`),
		password,
		time.Now().UTC(),
		username,
	)
	if err != nil {
		return false, fmt.Errorf("update user password: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("user update rows affected: %w", err)
	}
	return aff > 0, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
