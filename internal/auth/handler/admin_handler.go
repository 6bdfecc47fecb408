package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditReader is the read side of the audit trail.
type AuditReader interface {
	Read(ctx context.Context, day time.Time, filter audit.Filter) ([]audit.VerifiedEntry, error)
}

type AdminHandler struct {
	userService *service.UserService
	sessions    *service.SessionRegistry
	audit       AuditReader
}

func NewAdminHandler(userService *service.UserService, sessions *service.SessionRegistry, reader AuditReader) *AdminHandler {
	return &AdminHandler{userService: userService, sessions: sessions, audit: reader}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.userService.ListUsers(c.UserContext())
	if err != nil {
		return autherror.Internal(err)
	}
	out := make([]dto.UserOutput, 0, len(users))
	for _, u := range users {
		out = append(out, dto.NewUserOutput(u))
	}
	return c.JSON(fiber.Map{"users": out, "count": len(out)})
}

func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var input dto.CreateUserInput
	if err := c.BodyParser(&input); err != nil {
		return autherror.Validation("invalid input", nil)
	}
	user, err := h.userService.CreateUser(c.UserContext(), input)
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewUserOutput(user))
}

// SetActive enables or disables an account. Disabling ends all of its
// sessions.
func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	info, ok := SessionFromCtx(c)
	if !ok {
		return autherror.Authentication(autherror.ErrNoToken)
	}

	var input dto.SetActiveInput
	if err := c.BodyParser(&input); err != nil {
		return autherror.Validation("invalid input", nil)
	}
	if input.Active == nil {
		return autherror.ValidationField("active", "is required")
	}

	userID := c.Params("id")
	user, err := h.userService.SetActive(c.UserContext(), info.UserID, userID, *input.Active)
	if err != nil {
		return serviceError(err)
	}

	ended := 0
	if !user.IsActive {
		ended = h.sessions.TerminateUser(c.UserContext(), user.ID, "", domain.ReasonDeactivated)
	}
	return c.JSON(fiber.Map{
		"user":               dto.NewUserOutput(user),
		"sessionsTerminated": ended,
	})
}

// UserSessions lists the live sessions of one account.
func (h *AdminHandler) UserSessions(c *fiber.Ctx) error {
	sessions := h.sessions.ListForUser(c.Params("id"))
	out := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, fiber.Map{
			"sessionId":    s.ID,
			"createdAt":    s.CreatedAt,
			"lastActivity": s.LastActivity,
			"ipAddress":    s.IPAddress,
			"userAgent":    s.UserAgent,
		})
	}
	return c.JSON(fiber.Map{"sessions": out, "count": len(out)})
}

// AuditLog returns one UTC day of audit entries with their verification
// status. Query: date=YYYY-MM-DD, type=EVENT_TYPE, user=ID, limit=N.
func (h *AdminHandler) AuditLog(c *fiber.Ctx) error {
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return autherror.ValidationField("date", "must be YYYY-MM-DD")
		}
		day = parsed
	}

	filter := audit.Filter{
		Type:    audit.EventType(strings.ToUpper(c.Query("type"))),
		ActorID: c.Query("user"),
		Limit:   defaultAuditLimit,
	}
	if filter.Type != "" && !validEventType(filter.Type) {
		return autherror.ValidationField("type", "is not a known event type")
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			return autherror.ValidationField("limit", "must be between 1 and 1000")
		}
		filter.Limit = n
	}

	entries, err := h.audit.Read(c.UserContext(), day, filter)
	if err != nil {
		return autherror.Internal(err)
	}
	invalid := 0
	for _, e := range entries {
		if !e.Valid {
			invalid++
		}
	}
	return c.JSON(fiber.Map{
		"date":    day.Format("2006-01-02"),
		"entries": entries,
		"count":   len(entries),
		"invalid": invalid,
	})
}

func validEventType(t audit.EventType) bool {
	switch t {
	case audit.EventAccess, audit.EventAuthentication, audit.EventDataModification,
		audit.EventSecurity, audit.EventSystem:
		return true
	}
	return false
}
