package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindRateLimited    Kind = "RateLimited"
	KindUpstream       Kind = "UpstreamError"
	KindContentPolicy  Kind = "ContentPolicyError"
	KindInternal       Kind = "InternalError"
)

// AppError is the error type every handler returns to the fiber error handler.
// Message is always safe to show to a client; Err carries server-side detail.
type AppError struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation reports malformed input. Field-level detail is safe to return.
func Validation(message string, fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message, Fields: fields}
}

// ValidationField is shorthand for a single-field validation failure.
func ValidationField(field, problem string) *AppError {
	return Validation("invalid input", map[string]string{field: problem})
}

// NotFound reports that the resource addressed by the request does not exist.
func NotFound(message string) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusNotFound, Message: message}
}

// Conflict reports a uniqueness violation on field.
func Conflict(field, problem string) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusConflict, Message: "conflict", Fields: map[string]string{field: problem}}
}

func Authentication(cause error) *AppError {
	return &AppError{Kind: KindAuthentication, Status: http.StatusUnauthorized, Message: "authentication required", Err: cause}
}

// LoginFailed is the non-enumerating response for every failed login.
func LoginFailed(cause error) *AppError {
	return &AppError{Kind: KindAuthentication, Status: http.StatusUnauthorized, Message: "invalid username or password", Err: cause}
}

func Authorization(cause error) *AppError {
	return &AppError{Kind: KindAuthorization, Status: http.StatusForbidden, Message: "insufficient privilege", Err: cause}
}

func RateLimited() *AppError {
	return &AppError{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: "too many requests"}
}

// Upstream wraps an issue-tracker failure. Timeouts map to 504, the rest to 502.
func Upstream(cause error, timeout bool) *AppError {
	status := http.StatusBadGateway
	message := "issue tracker request failed"
	if timeout {
		status = http.StatusGatewayTimeout
		message = "issue tracker did not respond in time"
	}
	return &AppError{Kind: KindUpstream, Status: status, Message: message, Err: cause}
}

func ContentPolicy() *AppError {
	return &AppError{Kind: KindContentPolicy, Status: http.StatusBadRequest, Message: "request contains sensitive information"}
}

func Internal(cause error) *AppError {
	return &AppError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal server error", Err: cause}
}

// AsAppError extracts an *AppError from err, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
