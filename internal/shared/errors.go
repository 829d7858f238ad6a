package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates input failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts indicates the failed login limit was reached.
	ErrTooManyAttempts = errors.New("too many failed attempts")
	// ErrInvalidTransition indicates an account status change that is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)
