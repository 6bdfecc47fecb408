// Package sqlite is the single-node credential store backed by an embedded
// SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, is_active, must_change_password,
	failed_attempts, locked_until, last_login, session_timeout_minutes, theme, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u                    domain.User
		lockedUntil, lastLog sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.MustChangePassword,
		&u.FailedAttempts, &lockedUntil, &lastLog, &u.Preferences.SessionTimeoutMinutes,
		&u.Preferences.Theme, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if u.LockedUntil, err = parseNullTime(lockedUntil); err != nil {
		return nil, err
	}
	if u.LastLogin, err = parseNullTime(lastLog); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `username = ?`, username)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `lower(email) = lower(?)`, email)
}

func (r *SQLiteRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive, user.MustChangePassword,
		user.FailedAttempts, formatNullTime(user.LockedUntil), formatNullTime(user.LastLogin),
		user.Preferences.SessionTimeoutMinutes, user.Preferences.Theme,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	return mapWriteError(err)
}

func (r *SQLiteRepository) Update(ctx context.Context, user *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			username = ?, email = ?, password_hash = ?, role = ?, is_active = ?,
			must_change_password = ?, failed_attempts = ?, locked_until = ?, last_login = ?,
			session_timeout_minutes = ?, theme = ?, updated_at = ?
		WHERE id = ?
	`,
		user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive,
		user.MustChangePassword, user.FailedAttempts, formatNullTime(user.LockedUntil),
		formatNullTime(user.LastLogin), user.Preferences.SessionTimeoutMinutes,
		user.Preferences.Theme, formatTime(user.UpdatedAt), user.ID,
	)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

// recordFailureSQL works only from the stored row so concurrent writers, such
// as a password change, are never overwritten. Timestamps compare lexically.
const recordFailureSQL = `
	UPDATE users SET
		failed_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= ?2 THEN 1
			ELSE failed_attempts + 1 END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= ?2 THEN 1
				ELSE failed_attempts + 1 END) >= ?3 THEN ?4
			WHEN locked_until IS NOT NULL AND locked_until <= ?2 THEN NULL
			ELSE locked_until END,
		updated_at = ?2
	WHERE id = ?1
	RETURNING failed_attempts, locked_until
`

func (r *SQLiteRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		attempts int
		locked   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, recordFailureSQL, id, formatTime(now), threshold, formatTime(lockUntil)).
		Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, autherror.ErrUserNotFound
		}
		return 0, nil, err
	}
	lockedUntil, err := parseNullTime(locked)
	if err != nil {
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (r *SQLiteRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = ?2, updated_at = ?2
		WHERE id = ?1
	`, id, formatTime(at))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: users.username"):
		return autherror.ErrUsernameTaken
	case strings.Contains(msg, "UNIQUE constraint failed: users.email"):
		return autherror.ErrEmailAlreadyInUse
	}
	return err
}
