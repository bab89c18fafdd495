package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"advisor-twin/internal/auth"
	"advisor-twin/internal/domain"
	"advisor-twin/internal/email"
	"advisor-twin/internal/repository"
)

const (
	// MinPasswordLength applies to reset and change-password.
	MinPasswordLength = 6
	// DefaultResetTokenTTL is how long a reset link stays usable.
	DefaultResetTokenTTL = time.Hour

	resetTokenBytes = 32
)

// AuthService covers login and the password lifecycle of editor accounts.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	ForgotPassword(ctx context.Context, email, origin string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error
}

// LoginResult carries the bearer token issued on a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// AuthConfig tunes the password lifecycle.
type AuthConfig struct {
	ResetTokenTTL time.Duration
	// PublicOrigin roots reset links when the request origin is unknown or not allowed.
	PublicOrigin string
	// AllowedOrigins restricts which request origins may root a reset link.
	// Empty accepts any http(s) origin.
	AllowedOrigins []string
}

type authService struct {
	store  repository.Store
	tx     repository.Transactor
	tokens *auth.TokenManager
	mailer email.Sender
	cfg    AuthConfig
	logger logrus.FieldLogger

	now           func() time.Time
	newResetToken func() (string, error)
}

func NewAuthService(store repository.Store, tx repository.Transactor, tokens *auth.TokenManager, mailer email.Sender, cfg AuthConfig, logger logrus.FieldLogger) AuthService {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	return &authService{
		store:         store,
		tx:            tx,
		tokens:        tokens,
		mailer:        mailer,
		cfg:           cfg,
		logger:        logger.WithField("component", "auth"),
		now:           time.Now,
		newResetToken: randomResetToken,
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	cred := auth.ParseCredential(user.Password)
	if !cred.Matches(password) {
		return nil, ErrInvalidCredentials
	}
	if _, legacy := cred.(auth.LegacyCredential); legacy {
		s.migrateLegacyCredential(ctx, user.Username, password)
	}

	token, expiresAt, err := s.tokens.Issue(user.Username, user.ID)
	if err != nil {
		return nil, err
	}

	user.Password = ""
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// migrateLegacyCredential replaces a plaintext password with its bcrypt hash.
// Failures are logged; the login that triggered it still succeeds.
func (s *authService) migrateLegacyCredential(ctx context.Context, username, password string) {
	log := s.logger.WithField("username", username)

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.WithError(err).Error("hash legacy password")
		return
	}
	ok, err := s.store.Users.UpdatePassword(ctx, username, hash)
	if err != nil {
		log.WithError(err).Error("persist migrated password")
		return
	}
	if !ok {
		log.Warn("legacy password migration matched no user")
		return
	}
	log.Info("migrated legacy plaintext password to bcrypt")
}

func (s *authService) ForgotPassword(ctx context.Context, addr, origin string) error {
	username := NormalizeUsername(addr)
	if username == "" {
		return validationError("Email is required")
	}

	user, err := s.store.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown account")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := s.newResetToken()
	if err != nil {
		return err
	}
	if _, err := s.store.ResetTokens.Create(ctx, user.Username, token, s.now().Add(s.cfg.ResetTokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	msg := email.PasswordResetMessage(user.Username, s.resetURL(origin, token))
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Error("send password reset email")
		return nil
	}
	s.logger.WithField("username", user.Username).Info("password reset email sent")
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return validationError("Token and new password are required")
	}
	if err := checkPasswordLength(newPassword, "Password"); err != nil {
		return err
	}

	rec, err := s.store.ResetTokens.GetValid(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		updated, err := tx.Users.UpdatePassword(ctx, rec.Username, hash)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if !updated {
			return ErrUpdateFailed
		}

		consumed, err := tx.ResetTokens.MarkUsed(ctx, rec.Token)
		if err != nil {
			return fmt.Errorf("mark reset token used: %w", err)
		}
		if !consumed {
			return ErrInvalidOrExpiredToken
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithField("username", rec.Username).Info("password reset completed")
	return nil
}

// ChangePassword accepts either credential representation for the current
// password but does not migrate a legacy one; the new password is always hashed.
func (s *authService) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return validationError("Current password and new password are required")
	}
	if err := checkPasswordLength(newPassword, "New password"); err != nil {
		return err
	}

	user, err := s.store.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !auth.ParseCredential(user.Password).Matches(currentPassword) {
		return ErrIncorrectPassword
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	updated, err := s.store.Users.UpdatePassword(ctx, user.Username, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if !updated {
		return ErrUpdateFailed
	}

	s.logger.WithField("username", user.Username).Info("password changed")
	return nil
}

func (s *authService) resetURL(origin, token string) string {
	base := strings.TrimRight(s.cfg.PublicOrigin, "/")
	if s.originAllowed(origin) {
		base = strings.TrimRight(origin, "/")
	}
	return base + "/reset-password?token=" + url.QueryEscape(token)
}

func (s *authService) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

// checkPasswordLength enforces the minimum length in characters and the bcrypt
// input limit in bytes.
func checkPasswordLength(password, label string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationError(fmt.Sprintf("%s must be at least %d characters long", label, MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return validationError(fmt.Sprintf("%s must be at most %d bytes long", label, auth.MaxPasswordBytes))
	}
	return nil
}

// NormalizeUsername trims and lower-cases an account name or email.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func randomResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
