package domain

import (
	"context"
	"time"
)

// UserRepository is the credential store. Lookups return (nil, nil) when no
// record matches.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	// RecordLoginFailure increments the failed-attempt counter in place. An
	// expired lock restarts the count at one, and reaching threshold sets
	// locked_until to lockUntil. It returns the stored counter and lock.
	RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error)
	// RecordLoginSuccess clears the counter and lock and stamps last_login.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int, error)
}
