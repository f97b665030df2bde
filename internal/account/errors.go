package account

import "errors"

// Workflow outcomes the HTTP layer reports as client errors. Any other error
// returned by Service is an internal failure.
var (
	ErrValidation       = errors.New("all fields are required")
	ErrConflict         = errors.New("user already exists")
	ErrInvalidOrExpired = errors.New("invalid or expired verification code")
)
