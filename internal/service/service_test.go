package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"advisor-twin/internal/auth"
	"advisor-twin/internal/domain"
	"advisor-twin/internal/email"
	"advisor-twin/internal/repository/sqldb"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}

func newTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqldb.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqldb.Migrate(context.Background(), db, nil))
	return db
}

func seedUser(t *testing.T, db *sqldb.DB, username, stored string) {
	t.Helper()
	_, err := db.Store().Users.Create(context.Background(), &domain.User{Username: username, Password: stored})
	require.NoError(t, err)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return hash
}

func storedPassword(t *testing.T, db *sqldb.DB, username string) string {
	t.Helper()
	user, err := db.Store().Users.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return user.Password
}

var errBoom = errors.New("boom")

type authFixture struct {
	db     *sqldb.DB
	svc    *authService
	tokens *auth.TokenManager
	mailer *recordingSender
}

func newAuthFixture(t *testing.T, cfg AuthConfig) *authFixture {
	t.Helper()
	db := newTestDB(t)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	mailer := &recordingSender{}
	logger, _ := logtest.NewNullLogger()
	svc := NewAuthService(db.Store(), db, tokens, mailer, cfg, logger).(*authService)
	return &authFixture{db: db, svc: svc, tokens: tokens, mailer: mailer}
}
