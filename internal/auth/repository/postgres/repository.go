package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

const uniqueViolation = "23505"

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, is_active, must_change_password,
	failed_attempts, locked_until, last_login, session_timeout_minutes, theme, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.MustChangePassword,
		&u.FailedAttempts, &u.LockedUntil, &u.LastLogin, &u.Preferences.SessionTimeoutMinutes,
		&u.Preferences.Theme, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `username = $1`, username)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive, user.MustChangePassword,
		user.FailedAttempts, user.LockedUntil, user.LastLogin, user.Preferences.SessionTimeoutMinutes,
		user.Preferences.Theme, user.CreatedAt, user.UpdatedAt,
	)
	return mapWriteError(err)
}

func (r *PostgresRepository) Update(ctx context.Context, user *domain.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			username = $2, email = $3, password_hash = $4, role = $5, is_active = $6,
			must_change_password = $7, failed_attempts = $8, locked_until = $9, last_login = $10,
			session_timeout_minutes = $11, theme = $12, updated_at = $13
		WHERE id = $1
	`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive,
		user.MustChangePassword, user.FailedAttempts, user.LockedUntil, user.LastLogin,
		user.Preferences.SessionTimeoutMinutes, user.Preferences.Theme, user.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

// recordFailureSQL works only from the stored row so concurrent writers, such
// as a password change, are never overwritten.
const recordFailureSQL = `
	UPDATE users SET
		failed_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
			ELSE failed_attempts + 1 END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
				ELSE failed_attempts + 1 END) >= $3::int THEN $4::timestamptz
			WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN NULL
			ELSE locked_until END,
		updated_at = $2
	WHERE id = $1
	RETURNING failed_attempts, locked_until
`

func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.db.QueryRow(ctx, recordFailureSQL, id, now, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, autherror.ErrUserNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, username`)
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

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// mapWriteError turns unique-constraint violations into domain errors.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return autherror.ErrUsernameTaken
		case "users_email_key":
			return autherror.ErrEmailAlreadyInUse
		}
	}
	return err
}
