package errors

import (
	"errors"
)

// Authentication and session errors. These are internal reasons; clients only
// ever see the generic AuthenticationError message.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")

	ErrNoToken         = errors.New("no session token")
	ErrInvalidToken    = errors.New("invalid session token")
	ErrTokenExpired    = errors.New("session token expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionTimeout  = errors.New("session timed out after inactivity")
	ErrSessionExpired  = errors.New("session exceeded maximum lifetime")
	ErrSessionInvalid  = errors.New("session invalidated")

	ErrInsufficientPrivilege = errors.New("insufficient privilege")
)

// User management errors.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameTaken        = errors.New("username already in use")
	ErrEmailAlreadyInUse    = errors.New("email already in use")
	ErrWeakPassword         = errors.New("password does not meet the strength policy")
	ErrPasswordReuse        = errors.New("new password must differ from the current password")
	ErrCannotDeactivateSelf = errors.New("administrators cannot deactivate their own account")
)

// IsSessionRejection reports whether err is one of the reasons the session
// registry rejects a request.
func IsSessionRejection(err error) bool {
	for _, target := range []error{
		ErrNoToken, ErrInvalidToken, ErrTokenExpired, ErrSessionNotFound,
		ErrSessionTimeout, ErrSessionExpired, ErrSessionInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
