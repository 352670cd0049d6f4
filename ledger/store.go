/*
store.go - Persistence interfaces for enrollments, sharing links and audit

PURPOSE:
  Defines the contract between the engine and the database. Implementations
  exist for SQLite (store/sqlite) and in-memory (ledger/store, for tests).

OPTIMISTIC CONCURRENCY CONTRACT:
  Every write carries the version the caller read. On mismatch the store
  returns ErrVersionConflict and writes NOTHING - fail closed, no silent
  overwrite. expectedVersion == 0 means "create": the enrollment must not
  exist yet. A successful write persists the record with version
  expectedVersion+1.

ATOMIC AUDIT:
  Balance writes take the audit record as a parameter and commit both in a
  single store transaction. There is deliberately no separate "append audit"
  step for mutations: history can never disagree with state. The one
  exception is AppendRecord, used for audit-only events (excused leave)
  that touch no balance.

PAIR COMMITS:
  PutPair commits two enrollments and one record all-or-nothing, for hour
  conservation in transfers. Implementations must apply the version checks
  in the fixed EnrollmentKey order, not call order, so opposite-direction
  transfers cannot deadlock.

APPEND-ONLY AUDIT:
  The audit surface has AppendRecord and History. No update, no delete.
  Corrections are new records.

SEE ALSO:
  - processor.go: The only writer
  - store/memory.go: In-memory implementation
  - store/sqlite: Production implementation
*/
package ledger

import "context"

// =============================================================================
// ENROLLMENT STORE
// =============================================================================

// EnrollmentStore persists balances with optimistic version checks.
type EnrollmentStore interface {
	// Get returns the enrollment or ErrNotFound.
	Get(ctx context.Context, studentID StudentID, courseID CourseID) (Enrollment, error)

	// ListByStudent returns all enrollments for a student, any status,
	// ordered by course id. Read-only projection for listings.
	ListByStudent(ctx context.Context, studentID StudentID) ([]Enrollment, error)

	// Put commits the enrollment and its audit record atomically.
	// expectedVersion 0 creates; otherwise the stored version must match or
	// ErrVersionConflict is returned with nothing written.
	Put(ctx context.Context, e Enrollment, expectedVersion int64, rec Record) error

	// PutPair commits two enrollments and one audit record atomically.
	// Version semantics per record are identical to Put. Implementations
	// apply checks in EnrollmentKey order.
	PutPair(ctx context.Context, a Enrollment, aVersion int64, b Enrollment, bVersion int64, rec Record) error
}

// =============================================================================
// SHARING STORE
// =============================================================================

// SharingStore persists sharing links. Links are pure relations: no hours,
// no versions.
type SharingStore interface {
	// CreateLink persists the link and its audit record atomically.
	CreateLink(ctx context.Context, link SharingLink, rec Record) error

	// GetLink returns the link or ErrNotFound.
	GetLink(ctx context.Context, linkID string) (SharingLink, error)

	// DeleteLink removes the link by id, appending rec only when the link
	// existed. Returns (false, nil) for an absent link: deletion is
	// idempotent because the caller may have raced another removal.
	DeleteLink(ctx context.Context, linkID string, rec Record) (bool, error)

	// ListLinks returns all links where the student is the owner.
	ListLinks(ctx context.Context, studentID StudentID) ([]SharingLink, error)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog is the read/append surface of the audit trail. Mutation records
// are persisted through Put/PutPair/CreateLink/DeleteLink; AppendRecord is
// only for audit-only events that change no state.
type AuditLog interface {
	// AppendRecord persists a record with no accompanying state change.
	AppendRecord(ctx context.Context, rec Record) error

	// History returns every record touching the enrollment (either side of
	// a transfer), oldest first.
	History(ctx context.Context, studentID StudentID, courseID CourseID) ([]Record, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the processor needs.
type Store interface {
	EnrollmentStore
	SharingStore
	AuditLog
}
