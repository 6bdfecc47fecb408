package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
	authconstant "github.com/NotEclipsed/jira-dashboard/pkg/constant"
)

type GateConfig struct {
	Sessions     *service.SessionRegistry
	Users        *service.UserService
	Recorder     audit.Recorder
	Logger       logging.Logger
	CookieSecure bool
}

// Gate is the request gate in front of every protected route.
type Gate struct {
	sessions     *service.SessionRegistry
	users        *service.UserService
	recorder     audit.Recorder
	log          logging.Logger
	cookieSecure bool
}

func NewGate(cfg GateConfig) *Gate {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.Discard{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Gate{
		sessions:     cfg.Sessions,
		users:        cfg.Users,
		recorder:     recorder,
		log:          log.With("component", "gate"),
		cookieSecure: cfg.CookieSecure,
	}
}

// RequireSession rejects requests without a valid session and attaches the
// session to the request otherwise. A token past half its idle window is
// re-issued on the cookie and the X-Session-Token header.
func (g *Gate) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		meta := requestMeta(c)

		info, err := g.sessions.Validate(ctx, meta)
		if err != nil {
			g.recorder.Record(ctx, audit.Event{
				Type:   audit.EventSecurity,
				Action: "SESSION_REJECTED",
				Result: audit.ResultDenied,
				Details: map[string]any{
					"reason": rejectionReason(err),
					"method": c.Method(),
					"path":   c.Path(),
				},
			})
			if meta.Cookie != "" {
				clearSessionCookie(c, g.cookieSecure)
			}
			return autherror.Authentication(err)
		}

		attachSession(c, info)

		fresh, err := g.sessions.ReissueIfStale(info)
		if err != nil {
			g.log.Warn(c.UserContext(), "session token reissue failed", "error", err.Error())
		} else if fresh != nil {
			info.TokenIssuedAt = fresh.IssuedAt
			info.ExpiresAt = fresh.ExpiresAt
			setSessionCookie(c, fresh, g.cookieSecure)
			c.Set(authconstant.HeaderSessionToken, fresh.Token)
		}

		return c.Next()
	}
}

// RequireRole admits active accounts holding role. It must run after
// RequireSession. The account is reloaded so deactivation and role changes
// take effect without waiting for the session to end.
func (g *Gate) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, ok := SessionFromCtx(c)
		if !ok {
			return autherror.Authentication(autherror.ErrNoToken)
		}

		user, err := g.users.GetUser(c.UserContext(), info.UserID)
		if err != nil && !errors.Is(err, autherror.ErrUserNotFound) {
			return autherror.Internal(err)
		}
		if user == nil || !user.IsActive || user.Role != role {
			g.recorder.Record(c.UserContext(), audit.Event{
				Type:   audit.EventSecurity,
				Action: "UNAUTHORIZED_ACCESS_ATTEMPT",
				Result: audit.ResultDenied,
				Details: map[string]any{
					"required_role": role,
					"method":        c.Method(),
					"path":          c.Path(),
				},
			})
			return autherror.Authorization(autherror.ErrInsufficientPrivilege)
		}

		c.Locals(userLocalsKey, user)
		return c.Next()
	}
}

// AccessAudit records one ACCESS entry per protected request once the
// handler chain has finished.
func (g *Gate) AccessAudit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if appErr, ok := autherror.AsAppError(err); ok {
				status = appErr.Status
			} else if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		result := audit.ResultSuccess
		switch {
		case status == fiber.StatusUnauthorized || status == fiber.StatusForbidden:
			result = audit.ResultDenied
		case status >= fiber.StatusBadRequest:
			result = audit.ResultFailure
		}

		duration := time.Since(start)
		g.recorder.Record(c.UserContext(), audit.Event{
			Type:   audit.EventAccess,
			Action: "API_REQUEST",
			Result: result,
			Details: map[string]any{
				"method":      c.Method(),
				"route":       c.Route().Path,
				"path":        c.Path(),
				"status":      status,
				"duration_ms": duration.Milliseconds(),
			},
		})
		g.log.Debug(c.UserContext(), "request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", duration.Milliseconds(),
		)
		return err
	}
}
