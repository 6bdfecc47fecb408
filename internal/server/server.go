package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/handler"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
	"github.com/NotEclipsed/jira-dashboard/internal/scanner"
	"github.com/NotEclipsed/jira-dashboard/internal/ticket"
)

const bodyLimit = 1 << 20

type Deps struct {
	Config      *config.Config
	Logger      logging.Logger
	Recorder    audit.Recorder
	Users       *service.UserService
	Sessions    *service.SessionRegistry
	AuditReader handler.AuditReader
	Tracker     ticket.Tracker
	Scanner     *scanner.Scanner
	Now         func() time.Time
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Recorder == nil {
		d.Recorder = audit.Discard{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	cfg := d.Config
	log := d.Logger.With("component", "http")

	app := fiber.New(fiber.Config{
		AppName:               "jira-dashboard",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          ErrorHandler(log, d.Recorder, !cfg.IsProduction()),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(requestid.New())
	app.Use(handler.RequestContext())

	app.Get("/health", health(d.Sessions, d.Now))

	gate := handler.NewGate(handler.GateConfig{
		Sessions:     d.Sessions,
		Users:        d.Users,
		Recorder:     d.Recorder,
		Logger:       d.Logger,
		CookieSecure: cfg.CookieSecure,
	})

	handler.RegisterRoutes(app, gate,
		handler.NewAuthHandler(d.Users, d.Sessions, cfg.CookieSecure),
		handler.NewAdminHandler(d.Users, d.Sessions, d.AuditReader),
		loginLimiter(cfg.LoginRatePerMinute, d.Recorder),
	)

	tickets := app.Group("/api/v1/tickets",
		gate.RequireSession(),
		gate.AccessAudit(),
		scanner.Middleware(scanner.MiddlewareConfig{
			Scanner:  d.Scanner,
			Action:   scanner.ParseAction(cfg.ScannerMode),
			Mask:     scanner.ParseMaskMode(cfg.ScannerMask),
			Recorder: d.Recorder,
		}),
	)
	ticket.RegisterRoutes(tickets, ticket.NewHandler(d.Tracker, d.Recorder))

	return app
}

// loginLimiter caps login attempts per client address. A non-positive rate
// disables it.
func loginLimiter(perMinute int, recorder audit.Recorder) fiber.Handler {
	if perMinute <= 0 {
		return nil
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			recorder.Record(c.UserContext(), audit.Event{
				Type:    audit.EventSecurity,
				Action:  "RATE_LIMITED",
				Result:  audit.ResultDenied,
				Details: map[string]any{"path": c.Path(), "limit_per_minute": perMinute},
			})
			return autherror.RateLimited()
		},
	})
}

func health(sessions *service.SessionRegistry, now func() time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"sessions": sessions.Count(),
			"time":     now().UTC(),
		})
	}
}
