package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUserNotFound   = errors.New("user not found")
)

// UserStore persists users. Lookups return (nil, nil) when nothing matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByVerificationCode returns the user holding code whose expiry is
	// strictly after now.
	FindByVerificationCode(ctx context.Context, code string, now time.Time) (*User, error)
	// Create inserts u and fills in its timestamps. A taken email yields
	// ErrDuplicateEmail.
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	// ConsumeVerificationCode marks user id verified and clears its code,
	// but only while code is still the pending, unexpired one. It returns
	// (nil, nil) when another request already consumed or replaced it.
	ConsumeVerificationCode(ctx context.Context, id, code string, now time.Time) (*User, error)
}
