// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrValidation marks caller errors that are rejected synchronously
	// without any state change.
	ErrValidation = errors.New("validation error")

	// ErrPersistence marks identity store or durable storage failures.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound marks references to a user or achievement that does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrPrecondition marks operations that require state the caller does not have,
	// such as an active profile.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConflict marks attempts to enter a terminal state twice.
	ErrConflict = errors.New("conflict")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "achievement", "progression", "engine"
	Op      string // Operation that failed, e.g., "Register", "ApplyXP"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Achievement domain errors
var (
	ErrDuplicateDefinition  = NewDomainError("achievement", "Register", ErrValidation, "achievement id already registered")
	ErrInvalidDefinition    = NewDomainError("achievement", "Register", ErrValidation, "invalid achievement definition")
	ErrCatalogSealed        = NewDomainError("achievement", "Register", ErrPrecondition, "catalog is read-only")
	ErrAchievementNotFound  = NewDomainError("achievement", "Get", ErrNotFound, "achievement not found")
	ErrInvalidDelta         = NewDomainError("achievement", "Evaluate", ErrValidation, "progress delta must be positive")
	ErrInvalidCategory      = NewDomainError("achievement", "Evaluate", ErrValidation, "unknown achievement category")
	ErrAchievementUnlocked  = NewDomainError("achievement", "Unlock", ErrConflict, "achievement already unlocked")
	ErrInvalidProgressState = NewDomainError("achievement", "Advance", ErrValidation, "progress out of range")
)

// Progression domain errors
var (
	ErrInvalidXP        = NewDomainError("progression", "ApplyXP", ErrValidation, "xp delta must be non-negative")
	ErrInvalidLevel     = NewDomainError("progression", "ApplyXP", ErrValidation, "level must be at least 1")
	ErrInvalidTimestamp = NewDomainError("progression", "RecordActivity", ErrValidation, "activity date is earlier than last activity")
	ErrUserNotFound     = NewDomainError("progression", "GetUser", ErrNotFound, "user not found")
	ErrUserExists       = NewDomainError("progression", "CreateUser", ErrConflict, "user already exists")
	ErrNoActiveProfile  = NewDomainError("progression", "RequireProfile", ErrPrecondition, "no active profile")
	ErrInvalidInput     = NewDomainError("progression", "Validate", ErrValidation, "invalid input")
	ErrStoreUnavailable = NewDomainError("progression", "Store", ErrPersistence, "identity store unavailable")
	ErrStaleRecord      = NewDomainError("progression", "UpdateUser", ErrConflict, "record version is stale")
	ErrLockTimeout      = NewDomainError("progression", "Lock", ErrPersistence, "timed out waiting for user lock")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPersistence checks if the error came from the storage layer.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsPrecondition checks if the error is a failed precondition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Persistence wraps a storage failure so it matches ErrPersistence.
func Persistence(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsPersistence(err) || IsNotFound(err) || IsConflict(err) {
		return err
	}
	return WrapError(domain, op, ErrPersistence, "storage operation failed", err)
}

// Invalid builds a validation error with a specific message.
func Invalid(domain, op, message string) error {
	return NewDomainError(domain, op, ErrValidation, message)
}
