package repository

import (
	"context"

	"advisor-twin/internal/domain"
)

// ChatSessionRepository persists archived chat transcripts.
type ChatSessionRepository interface {
	Create(ctx context.Context, transcript string) (*domain.ChatSession, error)
	List(ctx context.Context) ([]domain.ChatSession, error)
	Get(ctx context.Context, id int64) (*domain.ChatSession, error)
	DeleteMany(ctx context.Context, ids []int64) error
	DeleteAll(ctx context.Context) error
}
