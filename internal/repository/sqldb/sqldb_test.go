package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor-twin/internal/domain"
	"advisor-twin/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, nil))
	return db
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()

	user := &domain.User{Username: "admin", Password: "secret"}
	id, err := store.Users.Create(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)

	_, err = store.Users.Create(ctx, &domain.User{Username: "admin", Password: "x"})
	require.ErrorIs(t, err, ErrUserExists)

	got, err := store.Users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)

	_, err = store.Users.GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, repository.ErrNotFound)

	ok, err := store.Users.UpdatePassword(ctx, "admin", "changed")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Users.UpdatePassword(ctx, "nobody", "changed")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = store.Users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Password)
}

func TestPasswordResetRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()
	now := time.Now()

	_, err := store.ResetTokens.Create(ctx, "admin", "live", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.ResetTokens.Create(ctx, "admin", "stale", now.Add(-time.Minute))
	require.NoError(t, err)

	rec, err := store.ResetTokens.GetValid(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, "admin", rec.Username)
	assert.False(t, rec.Used)

	_, err = store.ResetTokens.GetValid(ctx, "stale", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.ResetTokens.GetValid(ctx, "missing", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	ok, err := store.ResetTokens.MarkUsed(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ResetTokens.MarkUsed(ctx, "live")
	require.NoError(t, err)
	assert.False(t, ok, "a used token cannot be consumed twice")

	_, err = store.ResetTokens.GetValid(ctx, "live", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPasswordResetTokenExpiresAtBoundary(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	_, err := store.ResetTokens.Create(ctx, "admin", "edge", expires)
	require.NoError(t, err)

	_, err = store.ResetTokens.GetValid(ctx, "edge", expires)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.ResetTokens.GetValid(ctx, "edge", expires.Add(-time.Second))
	require.NoError(t, err)
}

func TestChatSessionRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()

	empty, err := store.Chats.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var ids []int64
	for _, transcript := range []string{"one", "two", "three"} {
		s, err := store.Chats.Create(ctx, transcript)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	list, err := store.Chats.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "three", list[0].Transcript)
	assert.Equal(t, "one", list[2].Transcript)

	got, err := store.Chats.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "two", got.Transcript)

	_, err = store.Chats.Get(ctx, 9999)
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.Chats.DeleteMany(ctx, []int64{ids[0], 9999}))
	require.NoError(t, store.Chats.DeleteMany(ctx, nil))
	list, err = store.Chats.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Chats.DeleteAll(ctx))
	list, err = store.Chats.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := db.Store()

	_, err := store.Users.Create(ctx, &domain.User{Username: "admin", Password: "old"})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		ok, err := tx.Users.UpdatePassword(ctx, "admin", "new")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "old", got.Password)

	err = db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		_, err := tx.Users.UpdatePassword(ctx, "admin", "new")
		return err
	})
	require.NoError(t, err)

	got, err = store.Users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	assert.Panics(t, func() {
		_ = db.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
			_, _ = tx.Chats.Create(ctx, "lost")
			panic("boom")
		})
	})

	list, err := db.Store().Chats.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a=? AND b=?", DialectSQLite.rebind("a=? AND b=?"))
	assert.Equal(t, "a=$1 AND b=$2", DialectPostgres.rebind("a=? AND b=?"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	require.Error(t, err)
}

func TestRepositoriesSurfaceDriverErrors(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := newStore(conn, DialectPostgres)

	mock.ExpectQuery(`INSERT INTO chat_sessions .* VALUES \(\$1, \$2\)`).
		WillReturnError(errors.New("connection reset"))
	_, err = store.Chats.Create(ctx, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert chat session")

	mock.ExpectExec(`UPDATE users`).
		WillReturnError(errors.New("disk full"))
	ok, err := store.Users.UpdatePassword(ctx, "admin", "x")
	require.Error(t, err)
	assert.False(t, ok)

	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WithArgs(tokenUsed, "tok", tokenUnused).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = store.ResetTokens.MarkUsed(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(`DELETE FROM chat_sessions WHERE id IN \(\$1,\$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.Chats.DeleteMany(ctx, []int64{1, 2}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserLookupIgnoresCase(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()

	_, err := store.Users.Create(ctx, &domain.User{Username: "HK@Borah.com", Password: "secret"})
	require.NoError(t, err)

	got, err := store.Users.GetByUsername(ctx, "hk@borah.com")
	require.NoError(t, err)
	assert.Equal(t, "HK@Borah.com", got.Username, "stored casing is preserved")

	ok, err := store.Users.UpdatePassword(ctx, "hk@borah.com", "changed")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = store.Users.GetByUsername(ctx, "HK@BORAH.COM")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Password)
}

func TestDeleteManyBatchesLargeSelections(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := newStore(conn, DialectPostgres)

	ids := make([]int64, 2*deleteBatchSize+3)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	mock.ExpectExec(`DELETE FROM chat_sessions WHERE id IN \(\$1,.*,\$500\)$`).
		WillReturnResult(sqlmock.NewResult(0, 500))
	mock.ExpectExec(`DELETE FROM chat_sessions WHERE id IN \(\$1,.*,\$500\)$`).
		WillReturnResult(sqlmock.NewResult(0, 500))
	mock.ExpectExec(`DELETE FROM chat_sessions WHERE id IN \(\$1,\$2,\$3\)$`).
		WithArgs(int64(1001), int64(1002), int64(1003)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.Chats.DeleteMany(ctx, ids))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteManyAcrossBatchesOnSQLite(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Store()

	var ids []int64
	for i := 0; i < 3; i++ {
		s, err := store.Chats.Create(ctx, "t")
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	for i := int64(0); i < deleteBatchSize; i++ {
		ids = append([]int64{100000 + i}, ids...)
	}

	require.NoError(t, store.Chats.DeleteMany(ctx, ids))
	list, err := store.Chats.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
