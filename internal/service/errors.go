package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrMisconfiguration   = errors.New("misconfiguration")

	ErrEmailTaken   = errors.New("email already registered")
	ErrNoteNotFound = errors.New("note not found")
	ErrInvalidInput = errors.New("invalid input")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// outcome turns an operation result into a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrMisconfiguration):
		return "misconfiguration"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "error"
	}
}
