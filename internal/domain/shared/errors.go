// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Data integrity errors
	ErrDataIntegrity = errors.New("data integrity violation")
	ErrPrecondition  = errors.New("precondition failed")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "catalog", "stats", "scoring"
	Op      string // Operation that failed, e.g., "Build", "Score"
	Kind    error  // Base error type for errors.Is() checking
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

// Is implements errors.Is() matching.
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

// Catalog domain errors
var (
	ErrUserNotFound  = NewDomainError("catalog", "FindUser", ErrNotFound, "user not found")
	ErrPostNotFound  = NewDomainError("catalog", "FindPost", ErrNotFound, "post not found")
	ErrInvalidUserID = NewDomainError("catalog", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidPostID = NewDomainError("catalog", "Validate", ErrInvalidID, "invalid post ID")
	ErrDuplicateUser = NewDomainError("catalog", "Load", ErrAlreadyExists, "duplicate user ID in source table")
	ErrDuplicatePost = NewDomainError("catalog", "Load", ErrAlreadyExists, "duplicate post ID in source table")
)

// Statistics domain errors
var (
	ErrUserStatNotFound      = NewDomainError("stats", "FindUserStat", ErrNotFound, "no interaction history for user")
	ErrStatisticsUnavailable = NewDomainError("stats", "FindAgeStat", ErrDataIntegrity, "no age bucket at or below the clamp floor")
	ErrEmptyInteractionLog   = NewDomainError("stats", "Build", ErrEmptyValue, "interaction log is empty")
	ErrAgeUnknown            = NewDomainError("stats", "Resolve", ErrPrecondition, "user age unknown, no fallback without an age")
)

// Feature assembly domain errors
var (
	ErrNoScoreableCandidates = NewDomainError("feature", "Assemble", ErrEmptyValue, "no candidate survived attribute lookup")
)

// Scoring domain errors
var (
	ErrScorerFailure    = NewDomainError("scoring", "Score", ErrExternalService, "scorer failed")
	ErrScoreOutOfRange  = NewDomainError("scoring", "Score", ErrValueOutOfRange, "score outside [0,1]")
	ErrUnknownVariant   = NewDomainError("scoring", "Load", ErrInvalidInput, "unknown model variant")
	ErrArtifactCorrupt  = NewDomainError("scoring", "Load", ErrInvalidFormat, "model artifact is corrupt")
	ErrArtifactMismatch = NewDomainError("scoring", "Load", ErrInvalidFormat, "artifact variant does not match configuration")
)

// Ranking domain errors
var (
	ErrScoreAlignment = NewDomainError("ranking", "Rank", ErrInvalidInput, "scores not aligned with candidates")
	ErrInvalidLimit   = NewDomainError("ranking", "Validate", ErrValueOutOfRange, "limit cannot be negative")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDataIntegrity checks if the error is a data-integrity violation.
// These are fatal at store-build time and must never be swallowed.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsPrecondition checks if the error is a hard precondition failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsScorerFailure checks if the error came from the scorer. Scorer failures
// are fatal for the whole request; no partial ranking is ever returned.
func IsScorerFailure(err error) bool {
	return errors.Is(err, ErrScorerFailure)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}
