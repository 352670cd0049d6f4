/*
errors.go - Centralized error types for the enrollment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes; nothing above the engine
  should need string matching.

ERROR CATEGORIES:
  1. Lookup errors     - Missing enrollments or sharing links
  2. Validation errors - Business rule violations (returned before any write)
  3. Concurrency       - Optimistic version conflicts

PROPAGATION POLICY:
  Validation errors are terminal and returned immediately; the engine never
  silently clamps (an over-refund is rejected, not capped at the balance).
  Version conflicts are retried internally a bounded number of times before
  being surfaced.

USAGE:
  if errors.Is(err, ledger.ErrInsufficientHours) {
      var detail *ledger.InsufficientHoursError
      if errors.As(err, &detail) {
          // detail.Available, detail.Requested, detail.Shortfall
      }
  }

SEE ALSO:
  - check.go: Produces the validation errors
  - processor.go: Retry policy for ErrVersionConflict
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced enrollment does not exist.
	ErrNotFound = errors.New("enrollment not found")

	// ErrInsufficientHours is returned when a deduction exceeds the
	// remaining balance. Never clamped: the caller decides what to do.
	ErrInsufficientHours = errors.New("insufficient hours")

	// ErrInvalidAmount is returned for negative hours or money inputs.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidStatusTransition is returned when a mutation targets an
	// enrollment in a terminal status, or requests a disallowed transition.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrVersionConflict is returned when an optimistic write lost a race
	// and the bounded internal retries were exhausted.
	ErrVersionConflict = errors.New("version conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientHoursError details a balance shortage.
type InsufficientHoursError struct {
	Key       EnrollmentKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientHoursError) Error() string {
	return fmt.Sprintf("insufficient hours for %s: available %s, requested %s",
		e.Key, e.Available, e.Requested)
}

func (e *InsufficientHoursError) Unwrap() error { return ErrInsufficientHours }

// Shortfall is how many hours the request exceeds the balance by.
func (e *InsufficientHoursError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// StatusTransitionError details a rejected lifecycle transition.
type StatusTransitionError struct {
	Key  EnrollmentKey
	From Status
	To   Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %s: %s -> %s", e.Key, e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// InvalidAmountError names the offending field so the caller can surface
// a usable message.
type InvalidAmountError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount for %s: %s", e.Field, e.Value)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientHours) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidStatusTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
