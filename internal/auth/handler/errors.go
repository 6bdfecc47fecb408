package handler

import (
	"errors"

	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

// serviceError translates user service sentinels into client-facing errors.
func serviceError(err error) error {
	if appErr, ok := autherror.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, autherror.ErrUserNotFound):
		return autherror.NotFound("user not found")
	case errors.Is(err, autherror.ErrUsernameTaken):
		return autherror.Conflict("username", "is already in use")
	case errors.Is(err, autherror.ErrEmailAlreadyInUse):
		return autherror.Conflict("email", "is already in use")
	case errors.Is(err, autherror.ErrPasswordReuse):
		return autherror.ValidationField("newPassword", "must differ from the current password")
	case errors.Is(err, autherror.ErrInvalidCredentials):
		return autherror.ValidationField("currentPassword", "is incorrect")
	case errors.Is(err, autherror.ErrCannotDeactivateSelf):
		return autherror.ValidationField("active", "cannot deactivate your own account")
	default:
		return autherror.Internal(err)
	}
}

// rejectionReason is the audit code for a session rejection.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, autherror.ErrNoToken):
		return "NO_TOKEN"
	case errors.Is(err, autherror.ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, autherror.ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, autherror.ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, autherror.ErrSessionTimeout):
		return "SESSION_TIMEOUT"
	case errors.Is(err, autherror.ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, autherror.ErrSessionInvalid):
		return "SESSION_INVALID"
	default:
		return "UNKNOWN"
	}
}
