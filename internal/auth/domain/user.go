package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

type Preferences struct {
	// SessionTimeoutMinutes shortens the idle timeout for this user; 0 means
	// the server default.
	SessionTimeoutMinutes int    `json:"sessionTimeoutMinutes"`
	Theme                 string `json:"theme"`
}

type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string `json:"-"`
	Role               string
	IsActive           bool
	MustChangePassword bool
	FailedAttempts     int
	LockedUntil        *time.Time
	LastLogin          *time.Time
	Preferences        Preferences
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLocked reports whether a lockout is still in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// DisplayName is what the dashboard shows for the account.
func (u *User) DisplayName() string {
	return u.Username
}
