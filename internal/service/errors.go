package service

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken indicates a reset token that is unknown, used or expired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	// ErrUpdateFailed indicates the password write matched no user row.
	ErrUpdateFailed = errors.New("failed to update password")
	// ErrUserNotFound is returned by authenticated flows whose user disappeared.
	ErrUserNotFound = errors.New("user not found")
	// ErrIncorrectPassword indicates a wrong current password on change-password.
	ErrIncorrectPassword = errors.New("current password is incorrect")
	// ErrSessionNotFound is returned when a chat session id matches nothing.
	ErrSessionNotFound = errors.New("chat session not found")
)

// ValidationError reports missing or malformed input. Message is safe to show
// to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(msg string) error {
	return &ValidationError{Message: msg}
}
