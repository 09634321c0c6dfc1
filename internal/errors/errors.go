// Package errors provides consolidated error definitions for lexcache.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Store failure classification (including read-only replica detection)
// - Error wrapping utilities
// - A validation error collector
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Store availability
	ErrStoreNotReady = errors.New("store not ready")
	ErrStoreClosed   = errors.New("store closed")

	// Safe-write failures
	ErrVerificationFailed = errors.New("write verification failed")
	ErrReadOnlyReplica    = errors.New("store is a read-only replica")

	// Validation
	ErrMissingField = errors.New("missing required field")
	ErrInvalidValue = errors.New("invalid value")

	// Protocol
	ErrInvalidFormat = errors.New("invalid message format")
	ErrUnknownAction = errors.New("unknown action")

	// Lookup
	ErrNotFound = errors.New("not found")
)

// ============================================================================
// Category checks
// ============================================================================

// Is is a convenience re-export of errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience re-export of errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotReady reports whether err indicates the backing store is unavailable.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrStoreNotReady) || errors.Is(err, ErrStoreClosed)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	if errors.Is(err, ErrMissingField) || errors.Is(err, ErrInvalidValue) {
		return true
	}
	var verrs *ValidationErrors
	return errors.As(err, &verrs)
}

// IsVerification reports whether err is a safe-write verification failure.
func IsVerification(err error) bool {
	return errors.Is(err, ErrVerificationFailed) || errors.Is(err, ErrReadOnlyReplica)
}

// IsReadOnlyReplica reports whether a store error looks like a write against
// a read-only replica. Redis surfaces this as an opaque error string
// ("READONLY You can't write against a read only replica."), so this is a
// substring match on the error text. Anything that does not match falls
// through to generic failure handling.
func IsReadOnlyReplica(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReadOnlyReplica) {
		return true
	}
	return strings.Contains(err.Error(), "READONLY")
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("%s '%v': %s: %w", field, value, reason, ErrInvalidValue)
}

// NewUnknownAction creates an unknown action error naming the received value.
func NewUnknownAction(action string) error {
	return fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// AddInvalid adds an invalid value error.
func (v *ValidationErrors) AddInvalid(field string, value interface{}, reason string) {
	v.Errors = append(v.Errors, NewInvalidValue(field, value, reason))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// ErrOrNil returns the collector as an error if it has errors, nil otherwise.
func (v *ValidationErrors) ErrOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Unwrap supports errors.Is against the collected errors.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
