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

const deleteBatchSize = 500

type ChatSessionRepository struct {
	db      DBTX
	dialect Dialect
}

func NewChatSessionRepository(db DBTX, dialect Dialect) *ChatSessionRepository {
	return &ChatSessionRepository{db: db, dialect: dialect}
}

func (r *ChatSessionRepository) Create(ctx context.Context, transcript string) (*domain.ChatSession, error) {
	session := &domain.ChatSession{
		Transcript: transcript,
		CreatedAt:  time.Now().UTC(),
	}

	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
INSERT INTO chat_sessions (transcript, created_at)
VALUES (?, ?)
RETURNING id`),
		session.Transcript,
		session.CreatedAt,
	).Scan(&session.ID)
	if err != nil {
		return nil, fmt.Errorf("insert chat session: %w", err)
	}
	return session, nil
}

// List returns every session, newest first. Ids grow monotonically so they
// double as the creation order.
func (r *ChatSessionRepository) List(ctx context.Context) ([]domain.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, transcript, created_at
FROM chat_sessions
ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.ChatSession{}
	for rows.Next() {
		session, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, rows.Err()
}

func (r *ChatSessionRepository) Get(ctx context.Context, id int64) (*domain.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
SELECT id, transcript, created_at
FROM chat_sessions
WHERE id=?`),
		id,
	)
	return scanChatSession(row)
}

// DeleteMany removes the given ids in batches of deleteBatchSize so large
// selections stay under the driver's bind-parameter limit.
func (r *ChatSessionRepository) DeleteMany(ctx context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		batch := ids[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			placeholders[i] = "?"
			args[i] = id
		}

		query := fmt.Sprintf(`DELETE FROM chat_sessions WHERE id IN (%s)`, strings.Join(placeholders, ","))
		if _, err := r.db.ExecContext(ctx, r.dialect.rebind(query), args...); err != nil {
			return fmt.Errorf("delete chat sessions: %w", err)
		}
	}
	return nil
}

func (r *ChatSessionRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions`); err != nil {
		return fmt.Errorf("delete all chat sessions: %w", err)
	}
	return nil
}

func scanChatSession(scanner interface {
	Scan(dest ...any) error
}) (*domain.ChatSession, error) {
	var session domain.ChatSession
	if err := scanner.Scan(&session.ID, &session.Transcript, &session.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan chat session: %w", err)
	}
	return &session, nil
}

var _ repository.ChatSessionRepository = (*ChatSessionRepository)(nil)
