/*
check.go - Precondition predicates for mutations

PURPOSE:
  Pure functions that validate a mutation against current state BEFORE any
  write happens. Each returns a structured error naming the reason, so the
  processor can fail closed without partial effects.

PREDICATES:
  CanDeduct:     hours <= remaining (attendance, refund)
  CanTransfer:   hours > 0 and hours <= remaining (transfer source)
  CanTransition: table-driven lifecycle rules
  CanMutate:     terminal-status guard shared by all balance mutations

THE TRANSITION TABLE:
  pending          -> studying (first payment)
  studying         <-> waiting_renewal / waiting_payment
  studying/waiting -> graduated, refunded (terminal)
  graduated, refunded -> nothing (administrative override is out of scope)

  Self-transitions are always allowed: most mutations keep the status.

SEE ALSO:
  - errors.go: The structured errors these predicates produce
  - processor.go: The only caller
*/
package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// BALANCE PREDICATES
// =============================================================================

// CanDeduct verifies that deducting hours leaves a non-negative balance.
// Rejection is never clamped; the caller sees the exact shortfall.
func CanDeduct(e Enrollment, hours decimal.Decimal) error {
	if hours.GreaterThan(e.RemainingHours) {
		return &InsufficientHoursError{
			Key:       e.Key(),
			Available: e.RemainingHours,
			Requested: hours,
		}
	}
	return nil
}

// CanTransfer verifies a transfer out of source: hours must be strictly
// positive and within the remaining balance.
func CanTransfer(hours decimal.Decimal, source Enrollment) error {
	if !hours.IsPositive() {
		return &InvalidAmountError{Field: "hours", Value: hours}
	}
	return CanDeduct(source, hours)
}

// =============================================================================
// LIFECYCLE PREDICATES
// =============================================================================

// transitions lists the allowed status moves. Absence means rejection.
// Self-transitions are handled in CanTransition, not listed here.
var transitions = map[Status][]Status{
	StatusPending:        {StatusStudying, StatusInactive},
	StatusStudying:       {StatusWaitingPayment, StatusWaitingRenewal, StatusGraduated, StatusRefunded, StatusInactive},
	StatusWaitingPayment: {StatusStudying, StatusRefunded, StatusInactive},
	StatusWaitingRenewal: {StatusStudying, StatusGraduated, StatusRefunded, StatusInactive},
	StatusExpired:        {StatusStudying, StatusRefunded, StatusInactive},
	StatusInactive:       {StatusStudying},
	// graduated, refunded: terminal, no exits
}

// CanTransition checks the lifecycle table. Terminal statuses have no
// outgoing edges; unfreezing them is an administrative act outside the
// engine.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}

// CanMutate rejects balance mutations on terminal enrollments. This is the
// guard shared by attendance, refund, renewal payment, and transfer sources
// and destinations.
func CanMutate(e Enrollment) error {
	if e.Status.Terminal() {
		return &StatusTransitionError{Key: e.Key(), From: e.Status, To: e.Status}
	}
	return nil
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

// ValidateNonNegative rejects negative quantities. field names the input
// for the error message.
func ValidateNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &InvalidAmountError{Field: field, Value: v}
	}
	return nil
}

// ValidatePositive rejects zero or negative quantities.
func ValidatePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return &InvalidAmountError{Field: field, Value: v}
	}
	return nil
}
