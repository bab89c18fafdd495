package repository

import "context"

// Store groups the repositories that share one database handle.
type Store struct {
	Users       UserRepository
	ResetTokens PasswordResetRepository
	Chats       ChatSessionRepository
}

// Transactor runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
