package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/handler"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/mocks"
)

const (
	bobPassword   = "Correct-Horse-9"
	alicePassword = "Admin-Pass-42!"
	testIP        = "0.0.0.0"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type fixture struct {
	app      *fiber.App
	gate     *handler.Gate
	auth     *handler.AuthHandler
	admin    *handler.AdminHandler
	repo     *mocks.MockUserRepository
	events   *[]audit.Event
	sessions *service.SessionRegistry
	users    *service.UserService
	clock    *clock
	bob      *domain.User
	alice    *domain.User
}

// newFixture wires real services around a mocked credential store and a
// capturing audit recorder, with every route mounted.
func newFixture(t *testing.T, reader handler.AuditReader) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockUserRepository(ctrl)
	recorder := mocks.NewMockRecorder(ctrl)
	var events []audit.Event
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev audit.Event) {
		events = append(events, ev)
	}).AnyTimes()

	clk := newClock()
	cfg := &config.Config{
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		BcryptCost:       bcrypt.MinCost,
	}
	users := service.NewUserService(repo, recorder, cfg).WithClock(clk.Now)
	tokens := service.NewTokenService("handler-test-secret").WithTimeFunc(clk.Now)
	sessions := service.NewSessionRegistry(tokens, service.RegistryConfig{
		IdleTimeout:     15 * time.Minute,
		AbsoluteTimeout: 60 * time.Minute,
		BindIP:          true,
		Recorder:        recorder,
		Now:             clk.Now,
	})

	gate := handler.NewGate(handler.GateConfig{
		Sessions: sessions,
		Users:    users,
		Recorder: recorder,
	})
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := autherror.AsAppError(err); ok {
				return c.Status(appErr.Status).JSON(fiber.Map{"error": appErr.Message, "fields": appErr.Fields})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})
	app.Use(handler.RequestContext())
	authHandler := handler.NewAuthHandler(users, sessions, false)
	adminHandler := handler.NewAdminHandler(users, sessions, reader)
	handler.RegisterRoutes(app, gate, authHandler, adminHandler, nil)

	return &fixture{
		app:      app,
		gate:     gate,
		auth:     authHandler,
		admin:    adminHandler,
		repo:     repo,
		events:   &events,
		sessions: sessions,
		users:    users,
		clock:    clk,
		bob: &domain.User{
			ID:           "user-bob",
			Username:     "bob",
			Email:        "bob@example.com",
			PasswordHash: hashPassword(t, bobPassword),
			Role:         domain.RoleUser,
			IsActive:     true,
		},
		alice: &domain.User{
			ID:           "user-alice",
			Username:     "alice",
			Email:        "alice@example.com",
			PasswordHash: hashPassword(t, alicePassword),
			Role:         domain.RoleAdmin,
			IsActive:     true,
		},
	}
}

// loginAs creates a session directly in the registry and returns its token.
func (f *fixture) loginAs(t *testing.T, user *domain.User) string {
	t.Helper()
	tok, err := f.sessions.Create(context.Background(), domain.RequestMeta{IPAddress: testIP}, user)
	require.NoError(t, err)
	return tok.Token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *fixture) find(typ audit.EventType, action string) []audit.Event {
	var out []audit.Event
	for _, ev := range *f.events {
		if ev.Type == typ && ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
