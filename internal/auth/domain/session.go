package domain

import (
	"context"
	"time"
)

// Termination reasons recorded with SESSION_TERMINATED audit entries.
const (
	ReasonLogout            = "LOGOUT"
	ReasonTimeoutInactivity = "TIMEOUT_INACTIVITY"
	ReasonTimeoutAbsolute   = "TIMEOUT_ABSOLUTE"
	ReasonIPMismatch        = "IP_MISMATCH"
	ReasonPasswordChanged   = "PASSWORD_CHANGED"
	ReasonDeactivated       = "DEACTIVATED"
)

// Session is server-side state for one login. Only the registry mutates it.
type Session struct {
	ID           string
	UserID       string
	Email        string
	DisplayName  string
	Role         string
	CreatedAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
	Active       bool
	// IdleTimeout is fixed at creation from server config and user preference.
	IdleTimeout time.Duration
}

// SessionInfo is the validated identity attached to a request.
type SessionInfo struct {
	SessionID     string
	UserID        string
	Email         string
	DisplayName   string
	Role          string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	TokenIssuedAt time.Time
}

// RequestMeta is what the gate extracts from an HTTP request.
type RequestMeta struct {
	Authorization string
	Cookie        string
	IPAddress     string
	UserAgent     string
}

type sessionCtxKey struct{}

func ContextWithSession(ctx context.Context, info *SessionInfo) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, info)
}

func SessionFromContext(ctx context.Context) (*SessionInfo, bool) {
	info, ok := ctx.Value(sessionCtxKey{}).(*SessionInfo)
	return info, ok && info != nil
}
