package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
	authconstant "github.com/NotEclipsed/jira-dashboard/pkg/constant"
)

const sessionIDBytes = 32

type RegistryConfig struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	// BindIP terminates a session when a request arrives from an address
	// other than the one that logged in.
	BindIP   bool
	Recorder audit.Recorder
	Logger   logging.Logger
	Now      func() time.Time
}

// SessionRegistry owns every live session. The map is guarded by a single
// mutex that is never held across audit writes.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	tokens   TokenGenerator
	idle     time.Duration
	absolute time.Duration
	bindIP   bool
	recorder audit.Recorder
	log      logging.Logger
	now      func() time.Time
}

func NewSessionRegistry(tokens TokenGenerator, cfg RegistryConfig) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]*domain.Session),
		tokens:   tokens,
		idle:     cfg.IdleTimeout,
		absolute: cfg.AbsoluteTimeout,
		bindIP:   cfg.BindIP,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
	if r.idle <= 0 {
		r.idle = 15 * time.Minute
	}
	if r.absolute <= 0 {
		r.absolute = 60 * time.Minute
	}
	if r.recorder == nil {
		r.recorder = audit.Discard{}
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.log = r.log.With("component", "session_registry")
	return r
}

// Create registers a new session for an authenticated user and signs a token
// referencing it.
func (r *SessionRegistry) Create(ctx context.Context, meta domain.RequestMeta, user *domain.User) (*dto.SessionToken, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	idle := r.idle
	if m := user.Preferences.SessionTimeoutMinutes; m > 0 && time.Duration(m)*time.Minute < idle {
		idle = time.Duration(m) * time.Minute
	}

	now := r.now()
	token, expiresAt, err := r.tokens.Generate(id, user.ID, idle)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s := &domain.Session{
		ID:           id,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName(),
		Role:         user.Role,
		CreatedAt:    now,
		LastActivity: now,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Active:       true,
		IdleTimeout:  idle,
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.recorder.Record(ctx, audit.Event{
		Type:      audit.EventSecurity,
		Action:    "SESSION_CREATED",
		Result:    audit.ResultSuccess,
		Actor:     audit.Actor{UserID: user.ID, Email: user.Email},
		SessionID: id,
		Details: map[string]any{
			"idle_timeout_seconds":     int(idle.Seconds()),
			"absolute_timeout_seconds": int(r.absolute.Seconds()),
		},
	})

	return &dto.SessionToken{
		SessionID: id,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate runs every session check in order and refreshes the activity
// timestamp on success. Sessions failing a timeout or address check are
// terminated before the error is returned.
func (r *SessionRegistry) Validate(ctx context.Context, meta domain.RequestMeta) (*domain.SessionInfo, error) {
	token := ExtractToken(meta)
	if token == "" {
		return nil, autherror.ErrNoToken
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, r.expired(ctx, claims, meta.IPAddress)
		}
		return nil, autherror.ErrInvalidToken
	}

	r.mu.Lock()
	s, ok := r.sessions[claims.SessionID]
	if !ok || !s.Active || s.UserID != claims.UserID {
		r.mu.Unlock()
		return nil, autherror.ErrSessionNotFound
	}

	now := r.now()
	reason, rejection := r.check(s, now, meta.IPAddress)
	if rejection != nil {
		r.removeLocked(s.ID)
		r.mu.Unlock()
		r.recordTermination(ctx, s, reason, now)
		return nil, rejection
	}

	s.LastActivity = now
	info := &domain.SessionInfo{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		CreatedAt:   s.CreatedAt,
	}
	r.mu.Unlock()

	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.TokenIssuedAt = claims.IssuedAt.Time
	}
	return info, nil
}

// expired handles a correctly signed token past its exp. The token's exp
// tracks the idle window, so the session it references is usually idle too;
// such a session is terminated here rather than left for the sweeper.
func (r *SessionRegistry) expired(ctx context.Context, claims *SessionClaims, ip string) error {
	if claims == nil {
		return autherror.ErrTokenExpired
	}

	r.mu.Lock()
	s, ok := r.sessions[claims.SessionID]
	if !ok || !s.Active || s.UserID != claims.UserID {
		r.mu.Unlock()
		return autherror.ErrTokenExpired
	}

	now := r.now()
	reason, rejection := r.check(s, now, ip)
	if rejection == nil {
		// Session still live; the client holds a superseded token.
		r.mu.Unlock()
		return autherror.ErrTokenExpired
	}
	r.removeLocked(s.ID)
	r.mu.Unlock()

	r.recordTermination(ctx, s, reason, now)
	return rejection
}

// check returns the termination reason and rejection for a session that is
// no longer valid at now. ip is skipped when empty (sweeper).
func (r *SessionRegistry) check(s *domain.Session, now time.Time, ip string) (string, error) {
	if now.Sub(s.LastActivity) > s.IdleTimeout {
		return domain.ReasonTimeoutInactivity, autherror.ErrSessionTimeout
	}
	if now.Sub(s.CreatedAt) > r.absolute {
		return domain.ReasonTimeoutAbsolute, autherror.ErrSessionExpired
	}
	if r.bindIP && ip != "" && ip != s.IPAddress {
		return domain.ReasonIPMismatch, autherror.ErrSessionInvalid
	}
	return "", nil
}

// ReissueIfStale signs a fresh token for the session once more than half of
// its idle window has passed since the current token was issued. It returns
// nil when the current token is still fresh.
func (r *SessionRegistry) ReissueIfStale(info *domain.SessionInfo) (*dto.SessionToken, error) {
	r.mu.Lock()
	s, ok := r.sessions[info.SessionID]
	if !ok || !s.Active {
		r.mu.Unlock()
		return nil, autherror.ErrSessionNotFound
	}
	idle := s.IdleTimeout
	r.mu.Unlock()

	now := r.now()
	if now.Sub(info.TokenIssuedAt) <= idle/2 {
		return nil, nil
	}

	token, expiresAt, err := r.tokens.Generate(info.SessionID, info.UserID, idle)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &dto.SessionToken{
		SessionID: info.SessionID,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Terminate ends a session. It reports false, and records nothing, when the
// session is already gone.
func (r *SessionRegistry) Terminate(ctx context.Context, sessionID, reason string) bool {
	r.mu.Lock()
	s := r.removeLocked(sessionID)
	r.mu.Unlock()

	if s == nil {
		return false
	}
	r.recordTermination(ctx, s, reason, r.now())
	return true
}

// TerminateUser ends every session of userID except keepSessionID and
// returns how many were ended.
func (r *SessionRegistry) TerminateUser(ctx context.Context, userID, keepSessionID, reason string) int {
	r.mu.Lock()
	var ended []*domain.Session
	for id, s := range r.sessions {
		if s.UserID == userID && id != keepSessionID {
			ended = append(ended, s)
		}
	}
	for _, s := range ended {
		r.removeLocked(s.ID)
	}
	r.mu.Unlock()

	now := r.now()
	for _, s := range ended {
		r.recordTermination(ctx, s, reason, now)
	}
	return len(ended)
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ListForUser returns copies of the user's sessions, oldest first.
func (r *SessionRegistry) ListForUser(userID string) []domain.Session {
	r.mu.Lock()
	out := make([]domain.Session, 0)
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sweep terminates every session that has hit its idle or absolute timeout.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	now := r.now()

	type expired struct {
		session *domain.Session
		reason  string
	}
	var ended []expired

	r.mu.Lock()
	for _, s := range r.sessions {
		if reason, rejection := r.check(s, now, ""); rejection != nil {
			ended = append(ended, expired{session: s, reason: reason})
		}
	}
	for _, e := range ended {
		r.removeLocked(e.session.ID)
	}
	r.mu.Unlock()

	for _, e := range ended {
		r.recordTermination(ctx, e.session, e.reason, now)
	}
	if len(ended) > 0 {
		r.log.Info(ctx, "expired sessions cleaned up", "count", len(ended), "remaining", r.Count())
	}
	return len(ended)
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (r *SessionRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

func (r *SessionRegistry) removeLocked(id string) *domain.Session {
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.Active = false
	delete(r.sessions, id)
	return s
}

func (r *SessionRegistry) recordTermination(ctx context.Context, s *domain.Session, reason string, now time.Time) {
	r.recorder.Record(ctx, audit.Event{
		Type:      audit.EventSecurity,
		Action:    "SESSION_TERMINATED",
		Result:    audit.ResultSuccess,
		Actor:     audit.Actor{UserID: s.UserID, Email: s.Email},
		SessionID: s.ID,
		Details: map[string]any{
			"reason":          reason,
			"durationSeconds": int(now.Sub(s.CreatedAt).Seconds()),
		},
	})
}

// ExtractToken reads the bearer token, falling back to the session cookie.
func ExtractToken(meta domain.RequestMeta) string {
	if h := strings.TrimSpace(meta.Authorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, authconstant.DefaultTokenType) && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(meta.Cookie)
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
