/*
Package ledger provides the course-hour accounting engine.

PURPOSE:
  This package contains the entities and operations for tracking per-student
  course-hour balances at a training institution: how hours are granted
  (payment), consumed (attendance), returned (refund), and moved between
  students or courses (transfer, transfer-class, sharing).

KEY CONCEPTS IN THIS FILE (types.go):
  - Enrollment: One student's balance against one course's hour pool
  - EnrollmentKey: Composite (student, course) identity, also the lock order
  - SharingLink: A capability letting a second course draw on a balance
  - Hours/Money: decimal.Decimal quantities (never float64)

DESIGN PRINCIPLES:
  1. Single source of truth: balances live in the Store; clients hold
     read-only projections
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Optimistic concurrency: every Enrollment carries a Version token
  4. Auditability: every committed mutation appends an immutable Record

USAGE:
  e := ledger.Enrollment{
      StudentID:      "stu-001",
      CourseID:       "crs-math",
      RemainingHours: decimal.NewFromInt(12),
      TotalHours:     decimal.NewFromInt(12),
      Status:         ledger.StatusStudying,
  }

SEE ALSO:
  - check.go: Precondition predicates (deduction, transitions, transfers)
  - calc.go: Refund and fee arithmetic
  - processor.go: The six mutation operations
  - audit.go: Immutable audit record types
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type CourseID string

// EnrollmentKey is the composite identity of an enrollment. Its String form
// is also the global total order used when committing two enrollments in one
// operation, so opposite-direction transfers cannot deadlock.
type EnrollmentKey struct {
	StudentID StudentID
	CourseID  CourseID
}

func (k EnrollmentKey) String() string {
	return string(k.StudentID) + "/" + string(k.CourseID)
}

// Less orders keys lexicographically on the composite string.
func (k EnrollmentKey) Less(other EnrollmentKey) bool {
	return k.String() < other.String()
}

// =============================================================================
// ENROLLMENT STATUS
// =============================================================================

type Status string

const (
	StatusPending        Status = "pending"
	StatusStudying       Status = "studying"
	StatusWaitingPayment Status = "waiting_payment"
	StatusWaitingRenewal Status = "waiting_renewal"
	StatusExpired        Status = "expired"
	StatusGraduated      Status = "graduated"
	StatusRefunded       Status = "refunded"
	StatusInactive       Status = "inactive"
)

// Terminal reports whether the status ends the enrollment's lifecycle.
// Terminal enrollments are retained for history and reject further mutation.
func (s Status) Terminal() bool {
	return s == StatusGraduated || s == StatusRefunded
}

// =============================================================================
// ENROLLMENT - One student's balance against one course's hour pool
// =============================================================================

// Enrollment binds a student to a course's hour pool.
//
// RemainingHours is the spendable balance and must never go negative.
// TotalHours is the cumulative hours ever granted; it is a reporting figure,
// not a cap on RemainingHours (a transfer-in can push Remaining past the
// original purchase).
type Enrollment struct {
	StudentID StudentID
	CourseID  CourseID

	// Denormalized reference fields, opaque to the engine.
	CoachID      string
	CourseTypeID string

	RemainingHours decimal.Decimal
	TotalHours     decimal.Decimal

	EnrollDate time.Time
	ValidUntil time.Time

	Status Status

	// Version is the optimistic concurrency token. It is bumped by the
	// Store on every successful Put.
	Version int64
}

func (e Enrollment) Key() EnrollmentKey {
	return EnrollmentKey{StudentID: e.StudentID, CourseID: e.CourseID}
}

// EffectiveStatus derives the display status at read time. Expiry is a
// read-time concern: the stored status never flips to expired, and the
// engine does not gate mutations on ValidUntil (that is caller policy).
func (e Enrollment) EffectiveStatus(now time.Time) Status {
	if e.Status.Terminal() {
		return e.Status
	}
	if !e.ValidUntil.IsZero() && e.ValidUntil.Before(now) {
		return StatusExpired
	}
	return e.Status
}

// =============================================================================
// SHARING LINK - Capability grant, not a balance
// =============================================================================

// SharingLink grants a second course access to an enrollment's hour pool
// without creating a second balance. It never moves hours: created by Share,
// deleted by Unshare, nothing in between.
type SharingLink struct {
	ID             string
	StudentID      StudentID
	SourceCourseID CourseID
	TargetCourseID CourseID
	CoachID        string
	CreatedAt      time.Time
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceType string

const (
	AttendanceNormal AttendanceType = "normal" // deducts hours
	AttendanceLeave  AttendanceType = "leave"  // excused, no deduction
	AttendanceAbsent AttendanceType = "absent" // unexcused, still deducts
)

// Deducts reports whether this attendance type consumes balance.
// Leave is recorded for history but never charged.
func (t AttendanceType) Deducts() bool {
	return t == AttendanceNormal || t == AttendanceAbsent
}

func (t AttendanceType) Valid() bool {
	switch t {
	case AttendanceNormal, AttendanceLeave, AttendanceAbsent:
		return true
	}
	return false
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustParseDecimal panics on malformed input. For literals in seeds and
// tests; parse user input with decimal.NewFromString.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("malformed decimal literal: " + s)
	}
	return d
}
