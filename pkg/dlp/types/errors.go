package types

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or incomplete event. Validation
// failures are rejected outright and never retried internally.
type ValidationError struct {
	EventID string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("invalid event: %s", e.Reason)
	}
	return fmt.Sprintf("invalid event %s: %s", e.EventID, e.Reason)
}

// NewValidationError creates a ValidationError for the given event.
func NewValidationError(eventID, reason string) *ValidationError {
	return &ValidationError{EventID: eventID, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DetectorError reports an isolated detector failure. Classification
// continues with the remaining detectors; the failure is recorded on the
// result so completeness is never silently overstated.
type DetectorError struct {
	Detector string
	EventID  string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s failed for event %s: %v", e.Detector, e.EventID, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// PolicyCompileError reports a malformed policy document encountered at
// load or reload. The reload is aborted entirely and the previous set
// stays active.
type PolicyCompileError struct {
	PolicyID string
	RuleID   string
	Err      error
}

func (e *PolicyCompileError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("policy %s rule %s: %v", e.PolicyID, e.RuleID, e.Err)
	}
	return fmt.Sprintf("policy %s: %v", e.PolicyID, e.Err)
}

func (e *PolicyCompileError) Unwrap() error { return e.Err }

// IsPolicyCompileError reports whether err is (or wraps) a PolicyCompileError.
func IsPolicyCompileError(err error) bool {
	var pe *PolicyCompileError
	return errors.As(err, &pe)
}

// PersistenceError reports a storage boundary failure. It is retryable:
// the computed classification and alerts are returned alongside it so the
// caller can resubmit without losing the verdict.
type PersistenceError struct {
	EventID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for event %s: %v", e.EventID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrBackpressure is returned when the pipeline's concurrency limit is
// reached and the submission policy is to reject rather than block. It is
// retryable.
var ErrBackpressure = errors.New("pipeline at capacity, retry later")

// Retryable reports whether the caller may safely resubmit after err.
func Retryable(err error) bool {
	if errors.Is(err, ErrBackpressure) {
		return true
	}
	var pe *PersistenceError
	return errors.As(err, &pe)
}
