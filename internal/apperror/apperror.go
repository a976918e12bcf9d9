// Package apperror defines the typed errors the service layer returns.
//
// Every AppError wraps one sentinel so callers can branch with errors.Is,
// while the Message stays safe to show to an API client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)

// Domain conflicts. Each one also matches ErrConflict through errors.Is.
var (
	ErrDuplicateName       = fmt.Errorf("duplicate name: %w", ErrConflict)
	ErrOwnerQuotaExceeded  = fmt.Errorf("owner quota exceeded: %w", ErrConflict)
	ErrOwnerQuotaUnderflow = fmt.Errorf("owner quota underflow: %w", ErrConflict)
)

type AppError struct {
	Err     error  // sentinel the error matches
	Message string // human-readable, safe for clients
	Field   string // optional: request field at fault
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden means the caller is known but lacks the role for the action.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller could not be identified.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// DuplicateName reports a name already taken by another resource.
func DuplicateName(resource, name string) *AppError {
	return &AppError{
		Err:     ErrDuplicateName,
		Message: fmt.Sprintf("a %s named %q already exists", resource, name),
		Field:   "name",
	}
}

// OwnerQuotaExceeded rejects a promotion that would push a club past maxOwners.
func OwnerQuotaExceeded(maxOwners int) *AppError {
	return &AppError{
		Err:     ErrOwnerQuotaExceeded,
		Message: fmt.Sprintf("a club can have at most %d owners", maxOwners),
		Field:   "role",
	}
}

// OwnerQuotaUnderflow rejects a demotion of a club's last owner.
func OwnerQuotaUnderflow() *AppError {
	return &AppError{
		Err:     ErrOwnerQuotaUnderflow,
		Message: "a club must keep at least one owner",
		Field:   "role",
	}
}

// Upstream wraps a failure from an external service (book search, text generation).
func Upstream(service string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s: %w", ErrUpstream, service, err),
		Message: fmt.Sprintf("%s is unavailable, try again later", service),
	}
}
