package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor-twin/internal/auth"
)

func TestLoginWithHashedPassword(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", mustHash(t, "correct-horse"))

	res, err := f.svc.Login(context.Background(), "  Admin ", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Empty(t, res.User.Password)

	claims, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, res.User.ID, claims.ID)
}

func TestLoginMigratesLegacyPassword(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", "plaintext1")

	_, err := f.svc.Login(context.Background(), "admin", "plaintext1")
	require.NoError(t, err)

	stored := storedPassword(t, f.db, "admin")
	assert.True(t, auth.IsBcryptHash(stored))
	assert.True(t, auth.ParseCredential(stored).Matches("plaintext1"))

	_, err = f.svc.Login(context.Background(), "admin", "plaintext1")
	require.NoError(t, err, "login keeps working after migration")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", mustHash(t, "correct-horse"))
	ctx := context.Background()

	_, errWrong := f.svc.Login(ctx, "admin", "wrong")
	_, errUnknown := f.svc.Login(ctx, "ghost", "wrong")
	_, errEmpty := f.svc.Login(ctx, "", "")

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errEmpty, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLoginLegacyWrongPasswordDoesNotMigrate(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", "plaintext1")

	_, err := f.svc.Login(context.Background(), "admin", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "plaintext1", storedPassword(t, f.db, "admin"))
}

func TestForgotPasswordUnknownUser(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{PublicOrigin: "https://example.com"})

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "ghost@example.com", ""))
	assert.Empty(t, f.mailer.messages())
}

func TestForgotPasswordRequiresEmail(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})

	err := f.svc.ForgotPassword(context.Background(), "  ", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Email is required", verr.Message)
}

func TestForgotPasswordSendsResetLink(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{PublicOrigin: "https://example.com"})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	f.svc.newResetToken = func() (string, error) { return "tok123", nil }

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "admin", "http://localhost:5173"))

	msgs := f.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "admin", msgs[0].To)
	assert.Contains(t, msgs[0].HTML, "http://localhost:5173/reset-password?token=tok123")

	rec, err := f.db.Store().ResetTokens.GetValid(context.Background(), "tok123", time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultResetTokenTTL), rec.ExpiresAt, time.Minute)
}

func TestForgotPasswordFallsBackToPublicOrigin(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{
		PublicOrigin:   "https://example.com/",
		AllowedOrigins: []string{"https://example.com"},
	})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	f.svc.newResetToken = func() (string, error) { return "tok123", nil }

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "admin", "https://evil.test"))

	msgs := f.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTML, "https://example.com/reset-password?token=tok123")
	assert.NotContains(t, msgs[0].HTML, "evil.test")
}

func TestForgotPasswordSwallowsDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{PublicOrigin: "https://example.com"})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	f.mailer.err = errBoom

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "admin", ""))
	assert.Len(t, f.mailer.messages(), 1)
}

func TestForgotPasswordTokensAreRandomHex(t *testing.T) {
	a, err := randomResetToken()
	require.NoError(t, err)
	b, err := randomResetToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestResetPasswordLifecycle(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{PublicOrigin: "https://example.com"})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	f.svc.newResetToken = func() (string, error) { return "tok123", nil }
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "admin", ""))
	require.NoError(t, f.svc.ResetPassword(ctx, "tok123", "brand-new"))

	_, err := f.svc.Login(ctx, "admin", "brand-new")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "admin", "old-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.svc.ResetPassword(ctx, "tok123", "another-one")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken, "tokens are single use")
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	ctx := context.Background()

	_, err := f.db.Store().ResetTokens.Create(ctx, "admin", "tok123", time.Now().Add(time.Hour))
	require.NoError(t, err)
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	err = f.svc.ResetPassword(ctx, "tok123", "brand-new")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	assert.True(t, auth.ParseCredential(storedPassword(t, f.db, "admin")).Matches("old-password"))
}

func TestResetPasswordValidation(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	for _, tc := range []struct {
		name, token, password string
	}{
		{"missing token", "", "long-enough"},
		{"missing password", "tok", ""},
		{"short password", "tok", "abc"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var verr *ValidationError
			require.ErrorAs(t, f.svc.ResetPassword(ctx, tc.token, tc.password), &verr)
		})
	}
}

func TestResetPasswordForDeletedUserKeepsTokenValid(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.db.Store().ResetTokens.Create(ctx, "ghost", "tok123", time.Now().Add(time.Hour))
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, "tok123", "brand-new")
	require.ErrorIs(t, err, ErrUpdateFailed)

	_, err = f.db.Store().ResetTokens.GetValid(ctx, "tok123", time.Now())
	require.NoError(t, err, "failed update must roll back the token consumption")
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	ctx := context.Background()

	require.ErrorIs(t, f.svc.ChangePassword(ctx, "admin", "wrong", "new-password"), ErrIncorrectPassword)
	require.ErrorIs(t, f.svc.ChangePassword(ctx, "ghost", "x", "new-password"), ErrUserNotFound)

	var verr *ValidationError
	require.ErrorAs(t, f.svc.ChangePassword(ctx, "admin", "old-password", "short"), &verr)
	require.ErrorAs(t, f.svc.ChangePassword(ctx, "admin", "", "new-password"), &verr)

	require.NoError(t, f.svc.ChangePassword(ctx, "admin", "old-password", "new-password"))
	assert.True(t, auth.ParseCredential(storedPassword(t, f.db, "admin")).Matches("new-password"))
}

func TestChangePasswordAcceptsLegacyCurrentPassword(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", "plaintext1")

	require.NoError(t, f.svc.ChangePassword(context.Background(), "admin", "plaintext1", "new-password"))
	assert.True(t, auth.IsBcryptHash(storedPassword(t, f.db, "admin")))
}

func TestLoginMixedCaseLegacyAccount(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "HK@Borah.com", "secret")

	res, err := f.svc.Login(context.Background(), "HK@Borah.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "HK@Borah.com", res.User.Username)

	stored := storedPassword(t, f.db, "HK@Borah.com")
	assert.True(t, auth.IsBcryptHash(stored), "legacy password migrated on the mixed-case row")

	_, err = f.svc.Login(context.Background(), "hk@borah.com", "secret")
	require.NoError(t, err)
}

func TestForgotPasswordMixedCaseAccount(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{PublicOrigin: "https://example.com"})
	seedUser(t, f.db, "HK@Borah.com", "secret")
	f.svc.newResetToken = func() (string, error) { return "tok123", nil }
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "HK@Borah.com", ""))

	msgs := f.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "HK@Borah.com", msgs[0].To)

	require.NoError(t, f.svc.ResetPassword(ctx, "tok123", "brand-new"))
	_, err := f.svc.Login(ctx, "hk@borah.com", "brand-new")
	require.NoError(t, err)
}

func TestPasswordOverBcryptLimitIsValidationError(t *testing.T) {
	f := newAuthFixture(t, AuthConfig{})
	seedUser(t, f.db, "admin", mustHash(t, "old-password"))
	ctx := context.Background()
	tooLong := strings.Repeat("a", auth.MaxPasswordBytes+1)

	_, err := f.db.Store().ResetTokens.Create(ctx, "admin", "tok123", time.Now().Add(time.Hour))
	require.NoError(t, err)

	var verr *ValidationError
	require.ErrorAs(t, f.svc.ResetPassword(ctx, "tok123", tooLong), &verr)
	require.ErrorAs(t, f.svc.ChangePassword(ctx, "admin", "old-password", tooLong), &verr)

	_, err = f.db.Store().ResetTokens.GetValid(ctx, "tok123", time.Now())
	require.NoError(t, err, "rejected reset leaves the token unused")

	require.NoError(t, f.svc.ChangePassword(ctx, "admin", "old-password", strings.Repeat("a", auth.MaxPasswordBytes)))
}
