package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
)

// RegisterRoutes mounts the authentication and administration routes.
// loginLimiter may be nil.
func RegisterRoutes(router fiber.Router, gate *Gate, h *AuthHandler, admin *AdminHandler, loginLimiter fiber.Handler) {
	login := []fiber.Handler{h.Login}
	if loginLimiter != nil {
		login = append([]fiber.Handler{loginLimiter}, login...)
	}
	router.Post("/api/v1/auth/login", login...)

	protected := func(handler fiber.Handler) []fiber.Handler {
		return []fiber.Handler{gate.RequireSession(), gate.AccessAudit(), handler}
	}
	router.Post("/api/v1/auth/logout", protected(h.Logout)...)
	router.Get("/api/v1/auth/me", protected(h.Me)...)
	router.Get("/api/v1/auth/session", protected(h.Session)...)
	router.Post("/api/v1/auth/change-password", protected(h.ChangePassword)...)
	router.Patch("/api/v1/auth/profile", protected(h.UpdateProfile)...)

	// Admin-only endpoints
	group := router.Group("/api/v1/admin", gate.RequireSession(), gate.RequireRole(domain.RoleAdmin), gate.AccessAudit())
	group.Get("/users", admin.ListUsers)
	group.Post("/users", admin.CreateUser)
	group.Patch("/users/:id/active", admin.SetActive)
	group.Get("/users/:id/sessions", admin.UserSessions)
	group.Get("/audit", admin.AuditLog)
}
