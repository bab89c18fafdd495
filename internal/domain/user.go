package domain

import "time"

// User represents an editor account allowed to sign in to the site.
// Password holds either a bcrypt hash or, for records seeded before hashing
// was introduced, the plaintext password.
type User struct {
	ID        int64
	Username  string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasswordResetToken is a single-use credential issued by the forgot-password flow.
type PasswordResetToken struct {
	ID        int64
	Username  string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Valid reports whether the token can still be redeemed at the given instant.
func (t PasswordResetToken) Valid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
