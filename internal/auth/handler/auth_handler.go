package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	authconstant "github.com/NotEclipsed/jira-dashboard/pkg/constant"
)

type AuthHandler struct {
	userService  *service.UserService
	sessions     *service.SessionRegistry
	cookieSecure bool
}

func NewAuthHandler(userService *service.UserService, sessions *service.SessionRegistry, cookieSecure bool) *AuthHandler {
	return &AuthHandler{userService: userService, sessions: sessions, cookieSecure: cookieSecure}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return autherror.Validation("invalid input", nil)
	}
	fields := map[string]string{}
	if strings.TrimSpace(input.Username) == "" {
		fields["username"] = "is required"
	}
	if input.Password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return autherror.Validation("invalid input", fields)
	}

	// Capture metadata
	input.IPAddress = c.IP()
	input.UserAgent = c.Get(fiber.HeaderUserAgent)

	result, err := h.userService.Authenticate(c.UserContext(), input)
	if err != nil {
		if errors.Is(err, autherror.ErrInvalidCredentials) ||
			errors.Is(err, autherror.ErrAccountLocked) ||
			errors.Is(err, autherror.ErrAccountDisabled) {
			return autherror.LoginFailed(err)
		}
		return autherror.Internal(err)
	}

	token, err := h.sessions.Create(c.UserContext(), domain.RequestMeta{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	}, result.User)
	if err != nil {
		return autherror.Internal(err)
	}

	setSessionCookie(c, token, h.cookieSecure)
	return c.Status(fiber.StatusOK).JSON(dto.LoginResponse{
		Token:              token.Token,
		TokenType:          authconstant.DefaultTokenType,
		ExpiresAt:          token.ExpiresAt,
		MustChangePassword: result.MustChangePassword,
		User:               dto.NewUserOutput(result.User),
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}
	h.sessions.Terminate(c.UserContext(), info.SessionID, domain.ReasonLogout)
	clearSessionCookie(c, h.cookieSecure)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}
	user, err := h.userService.GetUser(c.UserContext(), info.UserID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.NewUserOutput(user))
}

func (h *AuthHandler) Session(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}
	return c.JSON(dto.SessionStatus{
		Valid:     true,
		SessionID: info.SessionID,
		UserID:    info.UserID,
		Email:     info.Email,
		ExpiresAt: info.ExpiresAt,
	})
}

// ChangePassword also ends every other session of the account.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}

	var input dto.ChangePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return autherror.Validation("invalid input", nil)
	}
	fields := map[string]string{}
	if input.CurrentPassword == "" {
		fields["currentPassword"] = "is required"
	}
	if input.NewPassword == "" {
		fields["newPassword"] = "is required"
	}
	if len(fields) > 0 {
		return autherror.Validation("invalid input", fields)
	}

	if err := h.userService.ChangePassword(c.UserContext(), info.UserID, input); err != nil {
		return serviceError(err)
	}

	ended := h.sessions.TerminateUser(c.UserContext(), info.UserID, info.SessionID, domain.ReasonPasswordChanged)
	return c.JSON(fiber.Map{
		"message":            "password changed",
		"sessionsTerminated": ended,
	})
}

// UpdateProfile accepts only the whitelisted profile fields. Any other key,
// including role or isActive, fails validation.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}

	var patch dto.ProfileUpdate
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		if field, ok := unknownField(err); ok {
			return autherror.ValidationField(field, "is not an editable profile field")
		}
		return autherror.Validation("invalid input", nil)
	}

	user, err := h.userService.UpdateProfile(c.UserContext(), info.UserID, patch)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(dto.NewUserOutput(user))
}

// unknownField extracts the key from encoding/json's unknown field error.
func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	return strings.Trim(strings.TrimPrefix(msg, prefix), `"`), true
}
