package dto

import (
	"time"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
)

type UserOutput struct {
	ID                 string             `json:"id"`
	Username           string             `json:"username"`
	Email              string             `json:"email"`
	Role               string             `json:"role"`
	IsActive           bool               `json:"isActive"`
	MustChangePassword bool               `json:"mustChangePassword"`
	LastLogin          *time.Time         `json:"lastLogin,omitempty"`
	Preferences        domain.Preferences `json:"preferences"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func NewUserOutput(u *domain.User) UserOutput {
	return UserOutput{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Role:               u.Role,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		LastLogin:          u.LastLogin,
		Preferences:        u.Preferences,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

type CreateUserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type SetActiveInput struct {
	Active *bool `json:"active"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ProfileUpdate is the whitelisted profile patch. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email       *string           `json:"email"`
	Preferences *PreferencesPatch `json:"preferences"`
}

type PreferencesPatch struct {
	SessionTimeoutMinutes *int    `json:"sessionTimeoutMinutes"`
	Theme                 *string `json:"theme"`
}
