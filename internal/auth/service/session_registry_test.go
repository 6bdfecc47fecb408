package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/mocks"
)

const clientIP = "10.0.0.7"

type registryFixture struct {
	registry *service.SessionRegistry
	clock    *clock
	events   *[]audit.Event
}

func newRegistry(t *testing.T, bindIP bool) registryFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	clk := newClock()
	rec := mocks.NewMockRecorder(ctrl)
	events := captureEvents(rec)
	tokens := service.NewTokenService("registry-secret").WithTimeFunc(clk.Now)

	r := service.NewSessionRegistry(tokens, service.RegistryConfig{
		IdleTimeout:     15 * time.Minute,
		AbsoluteTimeout: 60 * time.Minute,
		BindIP:          bindIP,
		Recorder:        rec,
		Now:             clk.Now,
	})
	return registryFixture{registry: r, clock: clk, events: events}
}

func bobUser() *domain.User {
	return &domain.User{ID: "user-bob", Username: "bob", Email: "bob@example.com", Role: domain.RoleUser, IsActive: true}
}

func bearer(token string) domain.RequestMeta {
	return domain.RequestMeta{Authorization: "Bearer " + token, IPAddress: clientIP, UserAgent: "test-agent"}
}

func TestSessionRegistry_CreateAndValidate(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	assert.Len(t, tok.SessionID, 43)
	assert.Equal(t, f.clock.now.Add(15*time.Minute), tok.ExpiresAt)
	assert.Equal(t, 1, f.registry.Count())

	f.clock.Advance(5 * time.Minute)
	info, err := f.registry.Validate(ctx, bearer(tok.Token))

	require.NoError(t, err)
	assert.Equal(t, tok.SessionID, info.SessionID)
	assert.Equal(t, "user-bob", info.UserID)
	assert.Equal(t, "bob@example.com", info.Email)
	assert.Equal(t, "bob", info.DisplayName)

	sessions := f.registry.ListForUser("user-bob")
	require.Len(t, sessions, 1)
	assert.Equal(t, f.clock.now, sessions[0].LastActivity)
	assert.Equal(t, clientIP, sessions[0].IPAddress)
	assert.Equal(t, "test-agent", sessions[0].UserAgent)

	assert.Equal(t, []string{"SECURITY/SESSION_CREATED/SUCCESS"}, actions(*f.events))
}

func TestSessionRegistry_Validate_CookieFallback(t *testing.T) {
	f := newRegistry(t, true)

	tok, err := f.registry.Create(context.Background(), bearer(""), bobUser())
	require.NoError(t, err)

	_, err = f.registry.Validate(context.Background(), domain.RequestMeta{Cookie: tok.Token, IPAddress: clientIP})
	assert.NoError(t, err)

	_, err = f.registry.Validate(context.Background(), domain.RequestMeta{
		Authorization: "Basic Ym9iOnNlY3JldA==",
		Cookie:        tok.Token,
		IPAddress:     clientIP,
	})
	assert.NoError(t, err)
}

func TestSessionRegistry_Validate_Rejections(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	_, err := f.registry.Validate(ctx, domain.RequestMeta{IPAddress: clientIP})
	assert.Equal(t, autherror.ErrNoToken, err)

	_, err = f.registry.Validate(ctx, bearer("not-a-token"))
	assert.Equal(t, autherror.ErrInvalidToken, err)

	other := service.NewTokenService("registry-secret").WithTimeFunc(f.clock.Now)
	orphan, _, err := other.Generate("no-such-session", "user-bob", time.Minute)
	require.NoError(t, err)
	_, err = f.registry.Validate(ctx, bearer(orphan))
	assert.Equal(t, autherror.ErrSessionNotFound, err)

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	forged, _, err := other.Generate(tok.SessionID, "user-mallory", time.Minute)
	require.NoError(t, err)
	_, err = f.registry.Validate(ctx, bearer(forged))
	assert.Equal(t, autherror.ErrSessionNotFound, err)
}

func TestSessionRegistry_Validate_IdleTimeout(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)

	// Keep the token itself valid so the server-side idle check is what fails.
	long := service.NewTokenService("registry-secret").WithTimeFunc(f.clock.Now)
	token, _, err := long.Generate(tok.SessionID, "user-bob", time.Hour)
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.registry.Validate(ctx, bearer(token))

	assert.Equal(t, autherror.ErrSessionTimeout, err)
	assert.Equal(t, 0, f.registry.Count())
	assert.Empty(t, f.registry.ListForUser("user-bob"))

	last := (*f.events)[len(*f.events)-1]
	assert.Equal(t, "SESSION_TERMINATED", last.Action)
	assert.Equal(t, domain.ReasonTimeoutInactivity, last.Details["reason"])
	assert.Equal(t, 960, last.Details["durationSeconds"])

	_, err = f.registry.Validate(ctx, bearer(token))
	assert.Equal(t, autherror.ErrSessionNotFound, err)
}

func TestSessionRegistry_Validate_IdleWithIssuedToken(t *testing.T) {
	f := newRegistry(t, true)

	tok, err := f.registry.Create(context.Background(), bearer(""), bobUser())
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.registry.Validate(context.Background(), bearer(tok.Token))

	assert.Equal(t, autherror.ErrSessionTimeout, err)
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, []string{
		"SECURITY/SESSION_CREATED/SUCCESS",
		"SECURITY/SESSION_TERMINATED/SUCCESS",
	}, actions(*f.events))
	last := (*f.events)[len(*f.events)-1]
	assert.Equal(t, domain.ReasonTimeoutInactivity, last.Details["reason"])

	_, err = f.registry.Validate(context.Background(), bearer(tok.Token))
	assert.Equal(t, autherror.ErrTokenExpired, err)
}

func TestSessionRegistry_Validate_ExpiredTokenOfLiveSession(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)

	short := service.NewTokenService("registry-secret").WithTimeFunc(f.clock.Now)
	stale, _, err := short.Generate(tok.SessionID, "user-bob", time.Minute)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.registry.Validate(ctx, bearer(stale))

	assert.Equal(t, autherror.ErrTokenExpired, err)
	assert.Equal(t, 1, f.registry.Count())
}

func TestSessionRegistry_Validate_AbsoluteTimeout(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)

	long := service.NewTokenService("registry-secret").WithTimeFunc(f.clock.Now)
	token, _, err := long.Generate(tok.SessionID, "user-bob", 2*time.Hour)
	require.NoError(t, err)

	for elapsed := time.Duration(0); elapsed < 60*time.Minute; elapsed += 10 * time.Minute {
		f.clock.Advance(10 * time.Minute)
		_, err = f.registry.Validate(ctx, bearer(token))
		require.NoError(t, err, "at %s", elapsed+10*time.Minute)
	}

	f.clock.Advance(time.Minute)
	_, err = f.registry.Validate(ctx, bearer(token))
	assert.Equal(t, autherror.ErrSessionExpired, err)
	assert.Equal(t, 0, f.registry.Count())
}

func TestSessionRegistry_Validate_IPBinding(t *testing.T) {
	t.Run("bound", func(t *testing.T) {
		f := newRegistry(t, true)
		tok, err := f.registry.Create(context.Background(), bearer(""), bobUser())
		require.NoError(t, err)

		meta := bearer(tok.Token)
		meta.IPAddress = "192.168.1.20"
		_, err = f.registry.Validate(context.Background(), meta)

		assert.Equal(t, autherror.ErrSessionInvalid, err)
		assert.Equal(t, 0, f.registry.Count())
		last := (*f.events)[len(*f.events)-1]
		assert.Equal(t, domain.ReasonIPMismatch, last.Details["reason"])
	})

	t.Run("unbound", func(t *testing.T) {
		f := newRegistry(t, false)
		tok, err := f.registry.Create(context.Background(), bearer(""), bobUser())
		require.NoError(t, err)

		meta := bearer(tok.Token)
		meta.IPAddress = "192.168.1.20"
		_, err = f.registry.Validate(context.Background(), meta)

		assert.NoError(t, err)
	})
}

func TestSessionRegistry_ValidityMatchesInvariant(t *testing.T) {
	idle := 15 * time.Minute
	absolute := 60 * time.Minute

	tests := []struct {
		name      string
		steps     []time.Duration
		sameIP    bool
		wantValid bool
	}{
		{"fresh", []time.Duration{0}, true, true},
		{"idle exactly at limit", []time.Duration{15 * time.Minute}, true, true},
		{"idle past limit", []time.Duration{15*time.Minute + time.Second}, true, false},
		{"active until absolute", []time.Duration{14 * time.Minute, 14 * time.Minute, 14 * time.Minute, 14 * time.Minute, 4 * time.Minute}, true, true},
		{"active past absolute", []time.Duration{14 * time.Minute, 14 * time.Minute, 14 * time.Minute, 14 * time.Minute, 5 * time.Minute}, true, false},
		{"other address", []time.Duration{time.Minute}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistry(t, true)
			ctx := context.Background()

			tok, err := f.registry.Create(ctx, bearer(""), bobUser())
			require.NoError(t, err)
			long := service.NewTokenService("registry-secret").WithTimeFunc(f.clock.Now)
			token, _, err := long.Generate(tok.SessionID, "user-bob", 24*time.Hour)
			require.NoError(t, err)

			meta := bearer(token)
			var lastErr error
			for i, step := range tt.steps {
				f.clock.Advance(step)
				if i == len(tt.steps)-1 && !tt.sameIP {
					meta.IPAddress = "172.16.0.1"
				}
				_, lastErr = f.registry.Validate(ctx, meta)
			}

			elapsed := f.clock.now.Sub(tok.IssuedAt)
			assert.Equal(t, tt.wantValid, lastErr == nil, "elapsed %s idle %s absolute %s: %v", elapsed, idle, absolute, lastErr)
			assert.Equal(t, tt.wantValid, f.registry.Count() == 1)
		})
	}
}

func TestSessionRegistry_PreferenceShortensIdleTimeout(t *testing.T) {
	f := newRegistry(t, true)
	user := bobUser()
	user.Preferences.SessionTimeoutMinutes = 5

	tok, err := f.registry.Create(context.Background(), bearer(""), user)
	require.NoError(t, err)

	assert.Equal(t, f.clock.now.Add(5*time.Minute), tok.ExpiresAt)
	assert.Equal(t, 5*time.Minute, f.registry.ListForUser("user-bob")[0].IdleTimeout)
}

func TestSessionRegistry_TerminateTwiceIsNoop(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)

	assert.True(t, f.registry.Terminate(ctx, tok.SessionID, domain.ReasonLogout))
	assert.False(t, f.registry.Terminate(ctx, tok.SessionID, domain.ReasonLogout))

	assert.Equal(t, []string{
		"SECURITY/SESSION_CREATED/SUCCESS",
		"SECURITY/SESSION_TERMINATED/SUCCESS",
	}, actions(*f.events))
	assert.Equal(t, 90, (*f.events)[1].Details["durationSeconds"])

	_, err = f.registry.Validate(ctx, bearer(tok.Token))
	assert.Equal(t, autherror.ErrSessionNotFound, err)
}

func TestSessionRegistry_TerminateUser(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	keep, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	_, err = f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	_, err = f.registry.Create(ctx, bearer(""), &domain.User{ID: "user-alice", Username: "alice"})
	require.NoError(t, err)

	n := f.registry.TerminateUser(ctx, "user-bob", keep.SessionID, domain.ReasonPasswordChanged)

	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.registry.Count())
	require.Len(t, f.registry.ListForUser("user-bob"), 1)
	assert.Equal(t, keep.SessionID, f.registry.ListForUser("user-bob")[0].ID)

	assert.Equal(t, 1, f.registry.TerminateUser(ctx, "user-alice", "", domain.ReasonDeactivated))
}

func TestSessionRegistry_Sweep(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	stale, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	fresh, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	n := f.registry.Sweep(ctx)

	assert.Equal(t, 1, n)
	sessions := f.registry.ListForUser("user-bob")
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.SessionID, sessions[0].ID)
	assert.NotEqual(t, stale.SessionID, sessions[0].ID)
}

func TestSessionRegistry_StartSweeperStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var mu sync.Mutex
	now := time.Now()
	clockFn := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	rec := mocks.NewMockRecorder(ctrl)
	rec.EXPECT().Record(gomock.Any(), gomock.Any()).AnyTimes()

	r := service.NewSessionRegistry(service.NewTokenService("s").WithTimeFunc(clockFn), service.RegistryConfig{
		IdleTimeout: time.Minute,
		Recorder:    rec,
		Now:         clockFn,
	})
	_, err := r.Create(context.Background(), bearer(""), bobUser())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartSweeper(ctx, 10*time.Millisecond)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	assert.Eventually(t, func() bool { return r.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionRegistry_ReissueIfStale(t *testing.T) {
	f := newRegistry(t, true)
	ctx := context.Background()

	tok, err := f.registry.Create(ctx, bearer(""), bobUser())
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	info, err := f.registry.Validate(ctx, bearer(tok.Token))
	require.NoError(t, err)
	fresh, err := f.registry.ReissueIfStale(info)
	require.NoError(t, err)
	assert.Nil(t, fresh)

	f.clock.Advance(4 * time.Minute)
	info, err = f.registry.Validate(ctx, bearer(tok.Token))
	require.NoError(t, err)
	fresh, err = f.registry.ReissueIfStale(info)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, f.clock.now.Add(15*time.Minute), fresh.ExpiresAt)

	f.clock.Advance(10 * time.Minute)
	_, err = f.registry.Validate(ctx, bearer(tok.Token))
	assert.Equal(t, autherror.ErrTokenExpired, err)
	_, err = f.registry.Validate(ctx, bearer(fresh.Token))
	assert.NoError(t, err)
}

func TestSessionRegistry_TokenErrorsMapToSentinels(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokens := mocks.NewMockTokenGenerator(ctrl)
	r := service.NewSessionRegistry(tokens, service.RegistryConfig{})

	tokens.EXPECT().Verify("expired").Return(nil, fmt.Errorf("%w: %w", jwt.ErrTokenInvalidClaims, jwt.ErrTokenExpired))
	tokens.EXPECT().Verify("tampered").Return(nil, jwt.ErrTokenSignatureInvalid)

	_, err := r.Validate(context.Background(), bearer("expired"))
	assert.True(t, errors.Is(err, autherror.ErrTokenExpired))

	_, err = r.Validate(context.Background(), bearer("tampered"))
	assert.True(t, errors.Is(err, autherror.ErrInvalidToken))
}

func TestSessionRegistry_CreateFailsWhenSigningFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokens := mocks.NewMockTokenGenerator(ctrl)
	r := service.NewSessionRegistry(tokens, service.RegistryConfig{})

	tokens.EXPECT().Generate(gomock.Any(), "user-bob", 15*time.Minute).Return("", time.Time{}, errors.New("boom"))

	_, err := r.Create(context.Background(), bearer(""), bobUser())

	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "abc", service.ExtractToken(domain.RequestMeta{Authorization: "Bearer abc"}))
	assert.Equal(t, "abc", service.ExtractToken(domain.RequestMeta{Authorization: "bearer  abc "}))
	assert.Equal(t, "cookie", service.ExtractToken(domain.RequestMeta{Authorization: "Bearer ", Cookie: "cookie"}))
	assert.Equal(t, "", service.ExtractToken(domain.RequestMeta{}))
}
