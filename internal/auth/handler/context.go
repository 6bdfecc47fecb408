package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	authconstant "github.com/NotEclipsed/jira-dashboard/pkg/constant"
)

const (
	sessionLocalsKey = "auth.session"
	userLocalsKey    = "auth.user"
)

// SessionFromCtx returns the session the gate attached to this request.
func SessionFromCtx(c *fiber.Ctx) (*domain.SessionInfo, bool) {
	info, ok := c.Locals(sessionLocalsKey).(*domain.SessionInfo)
	return info, ok && info != nil
}

// UserFromCtx returns the account loaded by RequireRole.
func UserFromCtx(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(userLocalsKey).(*domain.User)
	return user, ok && user != nil
}

func requestMeta(c *fiber.Ctx) domain.RequestMeta {
	return domain.RequestMeta{
		Authorization: c.Get(fiber.HeaderAuthorization),
		Cookie:        c.Cookies(authconstant.SessionCookieName),
		IPAddress:     c.IP(),
		UserAgent:     c.Get(fiber.HeaderUserAgent),
	}
}

// RequestContext attaches the audit metadata every recorder call in this
// request inherits. It expects the requestid middleware to run first.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.Get(fiber.HeaderXRequestID)
		}
		ctx := audit.WithMeta(c.UserContext(), audit.Meta{
			RequestID: requestID,
			IPAddress: c.IP(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		})
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func attachSession(c *fiber.Ctx, info *domain.SessionInfo) {
	c.Locals(sessionLocalsKey, info)

	ctx := c.UserContext()
	meta, _ := audit.MetaFromContext(ctx)
	if meta.IPAddress == "" {
		meta.IPAddress = c.IP()
		meta.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	meta.SessionID = info.SessionID
	meta.Actor = audit.Actor{UserID: info.UserID, Email: info.Email}
	ctx = audit.WithMeta(ctx, meta)
	c.SetUserContext(domain.ContextWithSession(ctx, info))
}

func setSessionCookie(c *fiber.Ctx, token *dto.SessionToken, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.SessionCookieName,
		Value:    token.Token,
		Path:     "/",
		Expires:  token.ExpiresAt,
		Secure:   secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func clearSessionCookie(c *fiber.Ctx, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     authconstant.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
