package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

// Login failure reasons recorded in the audit trail.
const (
	ReasonInvalidCredentials = "INVALID_CREDENTIALS"
	ReasonAccountLocked      = "ACCOUNT_LOCKED"
	ReasonAccountDisabled    = "ACCOUNT_DISABLED"
	ReasonStoreError         = "STORE_ERROR"
)

const (
	maxSessionTimeoutMinutes = 60
	dummyPassword            = "dummy-password-for-timing"
)

type AuthResult struct {
	User               *domain.User
	MustChangePassword bool
}

type UserService struct {
	repo       domain.UserRepository
	recorder   audit.Recorder
	threshold  int
	lockout    time.Duration
	bcryptCost int
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(repo domain.UserRepository, recorder audit.Recorder, cfg *config.Config) *UserService {
	s := &UserService{
		repo:       repo,
		recorder:   recorder,
		threshold:  cfg.LockoutThreshold,
		lockout:    cfg.LockoutDuration,
		bcryptCost: cfg.BcryptCost,
		now:        time.Now,
	}
	if s.recorder == nil {
		s.recorder = audit.Discard{}
	}
	if s.threshold <= 0 {
		s.threshold = config.DefaultLockoutThreshold
	}
	if s.lockout <= 0 {
		s.lockout = config.DefaultLockoutMinutes * time.Minute
	}
	if s.bcryptCost < bcrypt.MinCost || s.bcryptCost > bcrypt.MaxCost {
		s.bcryptCost = bcrypt.DefaultCost
	}
	return s
}

func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// Authenticate checks a username (exact) or email (case-insensitive) and
// password, applying the lockout policy. Unknown users and wrong passwords
// both return ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, input dto.LoginInput) (*AuthResult, error) {
	identifier := strings.TrimSpace(input.Username)

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		s.recordLogin(ctx, nil, audit.ResultFailure, ReasonStoreError, nil)
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user == nil {
		s.compareDummy(input.Password)
		s.recordLogin(ctx, nil, audit.ResultFailure, ReasonInvalidCredentials, nil)
		return nil, autherror.ErrInvalidCredentials
	}

	now := s.now()
	if user.IsLocked(now) {
		s.recordLogin(ctx, user, audit.ResultFailure, ReasonAccountLocked, map[string]any{
			"locked_until": user.LockedUntil.UTC().Format(time.RFC3339),
		})
		return nil, autherror.ErrAccountLocked
	}
	if user.LockedUntil != nil {
		user.LockedUntil = nil
		user.FailedAttempts = 0
	}

	if !user.IsActive {
		s.recordLogin(ctx, user, audit.ResultFailure, ReasonAccountDisabled, nil)
		return nil, autherror.ErrAccountDisabled
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return nil, s.registerFailure(ctx, user, now)
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	user.UpdatedAt = now

	s.recordLogin(ctx, user, audit.ResultSuccess, "", nil)

	return &AuthResult{User: user, MustChangePassword: user.MustChangePassword}, nil
}

func (s *UserService) registerFailure(ctx context.Context, user *domain.User, now time.Time) error {
	attempts, lockedUntil, err := s.repo.RecordLoginFailure(ctx, user.ID, now, s.threshold, now.Add(s.lockout))
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	user.FailedAttempts = attempts
	user.LockedUntil = lockedUntil
	user.UpdatedAt = now
	locked := lockedUntil != nil && lockedUntil.After(now)

	s.recordLogin(ctx, user, audit.ResultFailure, ReasonInvalidCredentials, map[string]any{
		"failed_attempts": user.FailedAttempts,
	})
	if locked {
		s.recorder.Record(ctx, audit.Event{
			Type:   audit.EventSecurity,
			Action: "ACCOUNT_LOCKED",
			Result: audit.ResultSuccess,
			Actor:  audit.Actor{UserID: user.ID, Email: user.Email},
			Details: map[string]any{
				"failed_attempts": user.FailedAttempts,
				"locked_until":    user.LockedUntil.UTC().Format(time.RFC3339),
			},
		})
	}
	return autherror.ErrInvalidCredentials
}

func (s *UserService) lookup(ctx context.Context, identifier string) (*domain.User, error) {
	if identifier == "" {
		return nil, nil
	}
	user, err := s.repo.GetByUsername(ctx, identifier)
	if err != nil || user != nil {
		return user, err
	}
	if !strings.Contains(identifier, "@") {
		return nil, nil
	}
	return s.repo.GetByEmail(ctx, normalizeEmail(identifier))
}

// compareDummy spends the same bcrypt work as a real check so response time
// does not reveal whether the account exists.
func (s *UserService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), s.bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func (s *UserService) recordLogin(ctx context.Context, user *domain.User, result audit.Result, reason string, details map[string]any) {
	ev := audit.Event{
		Type:    audit.EventAuthentication,
		Action:  "LOGIN",
		Result:  result,
		Details: details,
	}
	if user != nil {
		ev.Actor = audit.Actor{UserID: user.ID, Email: user.Email}
	}
	if reason != "" {
		if ev.Details == nil {
			ev.Details = map[string]any{}
		}
		ev.Details["reason"] = reason
	}
	s.recorder.Record(ctx, ev)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.List(ctx)
}

// ChangePassword verifies the current password and stores a new one that
// meets the strength policy. It clears the must-change flag.
func (s *UserService) ChangePassword(ctx context.Context, userID string, input dto.ChangePasswordInput) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)) != nil {
		s.recordChange(ctx, user, "PASSWORD_CHANGED", audit.ResultFailure, map[string]any{"reason": ReasonInvalidCredentials})
		return autherror.ErrInvalidCredentials
	}
	if err := checkPassword("newPassword", input.NewPassword); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.NewPassword)) == nil {
		return autherror.ErrPasswordReuse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.bcryptCost)
	if err != nil {
		return err
	}

	user.PasswordHash = string(hash)
	user.MustChangePassword = false
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.recordChange(ctx, user, "PASSWORD_CHANGED", audit.ResultSuccess, nil)
	return nil
}

// UpdateProfile applies the whitelisted profile fields that are set.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch dto.ProfileUpdate) (*domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var changed []string
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if err := checkEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			existing, err := s.repo.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != user.ID {
				return nil, autherror.ErrEmailAlreadyInUse
			}
			user.Email = email
			changed = append(changed, "email")
		}
	}

	if p := patch.Preferences; p != nil {
		if p.SessionTimeoutMinutes != nil {
			m := *p.SessionTimeoutMinutes
			if m < 1 || m > maxSessionTimeoutMinutes {
				return nil, autherror.ValidationField("preferences.sessionTimeoutMinutes", "must be between 1 and 60")
			}
			user.Preferences.SessionTimeoutMinutes = m
			changed = append(changed, "preferences.sessionTimeoutMinutes")
		}
		if p.Theme != nil {
			switch *p.Theme {
			case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
				user.Preferences.Theme = *p.Theme
				changed = append(changed, "preferences.theme")
			default:
				return nil, autherror.ValidationField("preferences.theme", "must be light, dark or system")
			}
		}
	}

	if len(changed) == 0 {
		return user, nil
	}

	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.recordChange(ctx, user, "PROFILE_UPDATED", audit.ResultSuccess, map[string]any{"fields": changed})
	return user, nil
}

// CreateUser provisions an account. New accounts must change their password
// on first login.
func (s *UserService) CreateUser(ctx context.Context, input dto.CreateUserInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := normalizeEmail(input.Email)
	role := strings.ToLower(strings.TrimSpace(input.Role))
	if role == "" {
		role = domain.RoleUser
	}

	if err := checkUsername(username); err != nil {
		return nil, err
	}
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkRole(role); err != nil {
		return nil, err
	}
	if err := checkPassword("password", input.Password); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByUsername(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, autherror.ErrUsernameTaken
	}
	if existing, err := s.repo.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, autherror.ErrEmailAlreadyInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:                 uuid.New().String(),
		Username:           username,
		Email:              email,
		PasswordHash:       string(hash),
		Role:               role,
		IsActive:           true,
		MustChangePassword: true,
		Preferences:        domain.Preferences{Theme: domain.ThemeSystem},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Type:   audit.EventDataModification,
		Action: "USER_CREATED",
		Result: audit.ResultSuccess,
		Details: map[string]any{
			"target_user_id": user.ID,
			"role":           user.Role,
		},
	})
	return user, nil
}

// SetActive toggles an account. Reactivation also clears any lockout.
func (s *UserService) SetActive(ctx context.Context, actorID, userID string, active bool) (*domain.User, error) {
	if actorID == userID && !active {
		return nil, autherror.ErrCannotDeactivateSelf
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.IsActive = active
	if active {
		user.FailedAttempts = 0
		user.LockedUntil = nil
	}
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	action := "USER_DEACTIVATED"
	if active {
		action = "USER_ACTIVATED"
	}
	s.recorder.Record(ctx, audit.Event{
		Type:    audit.EventDataModification,
		Action:  action,
		Result:  audit.ResultSuccess,
		Details: map[string]any{"target_user_id": user.ID},
	})
	return user, nil
}

// EnsureDefaultAdmin creates the first administrator when the store is
// empty. It reports whether an account was created.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context, username, email, password string) (bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("no users exist and no default admin password is configured")
	}

	user, err := s.CreateUser(ctx, dto.CreateUserInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("create default admin: %w", err)
	}

	s.recorder.Record(ctx, audit.Event{
		Type:    audit.EventSystem,
		Action:  "DEFAULT_ADMIN_CREATED",
		Result:  audit.ResultSuccess,
		Actor:   audit.Actor{UserID: user.ID, Email: user.Email},
		Details: map[string]any{"target_user_id": user.ID},
	})
	return true, nil
}

func (s *UserService) recordChange(ctx context.Context, user *domain.User, action string, result audit.Result, details map[string]any) {
	s.recorder.Record(ctx, audit.Event{
		Type:    audit.EventDataModification,
		Action:  action,
		Result:  result,
		Actor:   audit.Actor{UserID: user.ID, Email: user.Email},
		Details: details,
	})
}
