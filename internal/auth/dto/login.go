package dto

import (
	"time"
)

// LoginInput accepts a username or an email in Username.
type LoginInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type LoginResponse struct {
	Token              string     `json:"token"`
	TokenType          string     `json:"tokenType"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	MustChangePassword bool       `json:"mustChangePassword"`
	User               UserOutput `json:"user"`
}

type SessionToken struct {
	SessionID string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type SessionStatus struct {
	Valid     bool      `json:"valid"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}
