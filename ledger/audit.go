/*
audit.go - Immutable audit records

PURPOSE:
  Every committed mutation appends exactly one record describing what moved
  and why. Records are the history view and the dispute-resolution trail.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: records are never updated or deleted
  2. ONE PER COMMIT: a record exists iff its mutation committed
  3. ATOMIC: the store persists the record in the same transaction as the
     balance write (see store.go), so history can never disagree with state

RECORD TYPES:
  PaymentRecord     hours granted + money received
  AttendanceRecord  hours consumed (or excused leave)
  RefundRecord      hours returned + computed net refund
  TransferRecord    hours moved between enrollments (+ price difference)
  SharingRecord     link created or removed (no hour movement)

Records implement the Record interface so stores can persist them
polymorphically; the concrete type carries the operation's figures.

SEE ALSO:
  - store.go: AuditLog read interface, atomic append contract
  - processor.go: Sole creator of records
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD INTERFACE
// =============================================================================

type RecordKind string

const (
	RecordPayment       RecordKind = "payment"
	RecordAttendance    RecordKind = "attendance"
	RecordRefund        RecordKind = "refund"
	RecordTransfer      RecordKind = "transfer"
	RecordTransferClass RecordKind = "transfer_class"
	RecordShare         RecordKind = "share"
	RecordUnshare       RecordKind = "unshare"
)

// Record is an immutable audit entry. Header identifies the affected
// enrollment (the source side for transfers); Kind selects the concrete
// type for persistence and display.
type Record interface {
	Kind() RecordKind
	Header() RecordHeader
}

// RecordHeader is the common prefix of every audit record.
type RecordHeader struct {
	ID        string // uuid, assigned by the processor
	At        time.Time
	StudentID StudentID
	CourseID  CourseID
	Reason    string
}

func (h RecordHeader) Header() RecordHeader { return h }

// =============================================================================
// CONCRETE RECORDS
// =============================================================================

// PaymentRecord logs an hour grant: regular + bonus hours credited and the
// money received. GiftItems is free text supplied by the front office.
type PaymentRecord struct {
	RecordHeader
	RegularHours  decimal.Decimal
	BonusHours    decimal.Decimal
	Amount        decimal.Decimal
	PaymentMethod string
	ValidUntil    time.Time
	GiftItems     string
}

func (PaymentRecord) Kind() RecordKind { return RecordPayment }

// AttendanceRecord logs a class session. Leave sessions carry hours for
// reporting but deduct nothing.
type AttendanceRecord struct {
	RecordHeader
	Hours decimal.Decimal
	Type  AttendanceType
}

func (AttendanceRecord) Kind() RecordKind { return RecordAttendance }

// RefundRecord logs hours returned and the refund arithmetic, including the
// net ActualRefund the calculator derived.
type RefundRecord struct {
	RecordHeader
	RefundHours    decimal.Decimal
	RefundAmount   decimal.Decimal
	HandlingFee    decimal.Decimal
	OtherDeduction decimal.Decimal
	ActualRefund   decimal.Decimal
}

func (RefundRecord) Kind() RecordKind { return RecordRefund }

// TransferRecord logs an hour movement between two enrollments. The header
// identifies the source; ToStudentID/ToCourseID the destination.
// CompensationFee is the signed price difference: recorded, never settled
// by the engine.
type TransferRecord struct {
	RecordHeader
	ToStudentID     StudentID
	ToCourseID      CourseID
	Hours           decimal.Decimal
	CompensationFee decimal.Decimal
	SameStudent     bool // true for course changes within one student
}

func (r TransferRecord) Kind() RecordKind {
	if r.SameStudent {
		return RecordTransferClass
	}
	return RecordTransfer
}

// SharingRecord logs the creation or removal of a sharing link.
type SharingRecord struct {
	RecordHeader
	LinkID         string
	TargetCourseID CourseID
	Removed        bool
}

func (r SharingRecord) Kind() RecordKind {
	if r.Removed {
		return RecordUnshare
	}
	return RecordShare
}

// Touches reports whether the record concerns the given enrollment key,
// on either side of a transfer.
func Touches(r Record, key EnrollmentKey) bool {
	h := r.Header()
	if h.StudentID == key.StudentID && h.CourseID == key.CourseID {
		return true
	}
	if t, ok := r.(TransferRecord); ok {
		return t.ToStudentID == key.StudentID && t.ToCourseID == key.CourseID
	}
	return false
}
