/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements the persistence interfaces (EnrollmentStore, SharingStore,
  AuditLog) using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

OPTIMISTIC CONCURRENCY:
  Enrollment rows carry a version column. Updates are guarded:

    UPDATE enrollments SET ... , version = ? WHERE student_id = ?
      AND course_id = ? AND version = ?

  Zero rows affected means somebody else won the race (or the row is gone);
  the store reports ledger.ErrVersionConflict / ledger.ErrNotFound and the
  SQL transaction rolls back, so nothing partial ever lands.

ATOMIC AUDIT:
  Every balance write inserts its audit record inside the same SQL
  transaction. audit_records is append-only: no UPDATE, no DELETE.

PAIR COMMITS:
  PutPair applies the two version-guarded updates in EnrollmentKey order
  inside one transaction, the fixed total order that keeps opposite-direction
  transfers deadlock-free on databases with row locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewProcessor(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions and commit contract
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/course-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writes are serialized by the mutex anyway, and a
	// pooled second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset drops all rows. Dev/demo only: it violates the append-only audit
// contract and exists solely for scenario loading.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"enrollments", "sharing_links", "audit_records"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	-- Enrollments (one balance per student+course)
	CREATE TABLE IF NOT EXISTS enrollments (
		student_id      TEXT NOT NULL,
		course_id       TEXT NOT NULL,
		coach_id        TEXT NOT NULL DEFAULT '',
		course_type_id  TEXT NOT NULL DEFAULT '',
		remaining_hours TEXT NOT NULL,
		total_hours     TEXT NOT NULL,
		enroll_date     TEXT NOT NULL,
		valid_until     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		version         INTEGER NOT NULL,
		PRIMARY KEY (student_id, course_id)
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_student
		ON enrollments(student_id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_status
		ON enrollments(status);

	-- Sharing links (pure relations, no balance)
	CREATE TABLE IF NOT EXISTS sharing_links (
		id               TEXT PRIMARY KEY,
		student_id       TEXT NOT NULL,
		source_course_id TEXT NOT NULL,
		target_course_id TEXT NOT NULL,
		coach_id         TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sharing_links_student
		ON sharing_links(student_id);

	-- Audit records (append-only; no UPDATE, no DELETE, ever)
	CREATE TABLE IF NOT EXISTS audit_records (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		student_id    TEXT NOT NULL,
		course_id     TEXT NOT NULL,
		to_student_id TEXT NOT NULL DEFAULT '',
		to_course_id  TEXT NOT NULL DEFAULT '',
		at            TEXT NOT NULL,
		reason        TEXT NOT NULL DEFAULT '',
		payload_json  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_records_enrollment
		ON audit_records(student_id, course_id);
	CREATE INDEX IF NOT EXISTS idx_audit_records_destination
		ON audit_records(to_student_id, to_course_id)
		WHERE to_student_id != '';
	CREATE INDEX IF NOT EXISTS idx_audit_records_kind
		ON audit_records(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENROLLMENT STORE (ledger.EnrollmentStore interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, studentID ledger.StudentID, courseID ledger.CourseID) (ledger.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, course_id, coach_id, course_type_id, remaining_hours,
		       total_hours, enroll_date, valid_until, status, version
		FROM enrollments
		WHERE student_id = ? AND course_id = ?
	`, studentID, courseID)

	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return ledger.Enrollment{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Enrollment{}, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

func (s *Store) ListByStudent(ctx context.Context, studentID ledger.StudentID) ([]ledger.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, course_id, coach_id, course_type_id, remaining_hours,
		       total_hours, enroll_date, valid_until, status, version
		FROM enrollments
		WHERE student_id = ?
		ORDER BY course_id ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var result []ledger.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) Put(ctx context.Context, e ledger.Enrollment, expectedVersion int64, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.putTx(ctx, tx, e, expectedVersion); err != nil {
		return err
	}
	if err := s.appendRecordTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) PutPair(ctx context.Context, a ledger.Enrollment, aVersion int64, b ledger.Enrollment, bVersion int64, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Fixed global write order over composite keys.
	first, firstVer, second, secondVer := a, aVersion, b, bVersion
	if second.Key().Less(first.Key()) {
		first, firstVer, second, secondVer = b, bVersion, a, aVersion
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.putTx(ctx, tx, first, firstVer); err != nil {
		return err
	}
	if err := s.putTx(ctx, tx, second, secondVer); err != nil {
		return err
	}
	if err := s.appendRecordTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// putTx performs one version-guarded write inside an open transaction.
func (s *Store) putTx(ctx context.Context, tx *sql.Tx, e ledger.Enrollment, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO enrollments
			(student_id, course_id, coach_id, course_type_id, remaining_hours,
			 total_hours, enroll_date, valid_until, status, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.StudentID, e.CourseID, e.CoachID, e.CourseTypeID,
			e.RemainingHours.String(), e.TotalHours.String(),
			e.EnrollDate.UTC().Format(time.RFC3339), formatTime(e.ValidUntil),
			e.Status, expectedVersion+1,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				// Somebody created the enrollment first.
				return ledger.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE enrollments
		SET coach_id = ?, course_type_id = ?, remaining_hours = ?, total_hours = ?,
		    valid_until = ?, status = ?, version = ?
		WHERE student_id = ? AND course_id = ? AND version = ?
	`,
		e.CoachID, e.CourseTypeID, e.RemainingHours.String(), e.TotalHours.String(),
		formatTime(e.ValidUntil), e.Status, expectedVersion+1,
		e.StudentID, e.CourseID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var count int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM enrollments WHERE student_id = ? AND course_id = ?",
			e.StudentID, e.CourseID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check enrollment existence: %w", err)
		}
		if count == 0 {
			return ledger.ErrNotFound
		}
		return ledger.ErrVersionConflict
	}
	return nil
}

// =============================================================================
// SHARING STORE (ledger.SharingStore interface)
// =============================================================================

func (s *Store) CreateLink(ctx context.Context, link ledger.SharingLink, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sharing_links
		(id, student_id, source_course_id, target_course_id, coach_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		link.ID, link.StudentID, link.SourceCourseID, link.TargetCourseID,
		link.CoachID, link.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sharing link: %w", err)
	}

	if err := s.appendRecordTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetLink(ctx context.Context, linkID string) (ledger.SharingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var link ledger.SharingLink
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, source_course_id, target_course_id, coach_id, created_at
		FROM sharing_links
		WHERE id = ?
	`, linkID).Scan(&link.ID, &link.StudentID, &link.SourceCourseID,
		&link.TargetCourseID, &link.CoachID, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.SharingLink{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.SharingLink{}, fmt.Errorf("failed to get sharing link: %w", err)
	}
	link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return link, nil
}

func (s *Store) DeleteLink(ctx context.Context, linkID string, rec ledger.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sharing_links WHERE id = ?", linkID)
	if err != nil {
		return false, fmt.Errorf("failed to delete sharing link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := s.appendRecordTx(ctx, tx, rec); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) ListLinks(ctx context.Context, studentID ledger.StudentID) ([]ledger.SharingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, source_course_id, target_course_id, coach_id, created_at
		FROM sharing_links
		WHERE student_id = ?
		ORDER BY created_at ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sharing links: %w", err)
	}
	defer rows.Close()

	var result []ledger.SharingLink
	for rows.Next() {
		var link ledger.SharingLink
		var createdAt string
		if err := rows.Scan(&link.ID, &link.StudentID, &link.SourceCourseID,
			&link.TargetCourseID, &link.CoachID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sharing link: %w", err)
		}
		link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, link)
	}
	return result, rows.Err()
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

func (s *Store) AppendRecord(ctx context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendRecordTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) appendRecordTx(ctx context.Context, tx *sql.Tx, rec ledger.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	h := rec.Header()
	var toStudent ledger.StudentID
	var toCourse ledger.CourseID
	if t, ok := rec.(ledger.TransferRecord); ok {
		toStudent, toCourse = t.ToStudentID, t.ToCourseID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_records
		(id, kind, student_id, course_id, to_student_id, to_course_id, at, reason, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, rec.Kind(), h.StudentID, h.CourseID, toStudent, toCourse,
		h.At.UTC().Format(time.RFC3339Nano), h.Reason, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, studentID ledger.StudentID, courseID ledger.CourseID) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, payload_json
		FROM audit_records
		WHERE (student_id = ? AND course_id = ?)
		   OR (to_student_id = ? AND to_course_id = ?)
		ORDER BY at ASC, rowid ASC
	`, studentID, courseID, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var result []ledger.Record
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec, err := decodeRecord(ledger.RecordKind(kind), []byte(payload))
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// decodeRecord rebuilds the concrete record type from its stored payload.
func decodeRecord(kind ledger.RecordKind, payload []byte) (ledger.Record, error) {
	switch kind {
	case ledger.RecordPayment:
		var rec ledger.PaymentRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode payment record: %w", err)
		}
		return rec, nil
	case ledger.RecordAttendance:
		var rec ledger.AttendanceRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode attendance record: %w", err)
		}
		return rec, nil
	case ledger.RecordRefund:
		var rec ledger.RefundRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode refund record: %w", err)
		}
		return rec, nil
	case ledger.RecordTransfer, ledger.RecordTransferClass:
		var rec ledger.TransferRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode transfer record: %w", err)
		}
		return rec, nil
	case ledger.RecordShare, ledger.RecordUnshare:
		var rec ledger.SharingRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode sharing record: %w", err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown audit record kind %q", kind)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (ledger.Enrollment, error) {
	var e ledger.Enrollment
	var remaining, total, enrollDate, validUntil string

	err := row.Scan(&e.StudentID, &e.CourseID, &e.CoachID, &e.CourseTypeID,
		&remaining, &total, &enrollDate, &validUntil, &e.Status, &e.Version)
	if err != nil {
		return ledger.Enrollment{}, err
	}

	e.RemainingHours, err = decimal.NewFromString(remaining)
	if err != nil {
		return ledger.Enrollment{}, fmt.Errorf("corrupt remaining_hours %q: %w", remaining, err)
	}
	e.TotalHours, err = decimal.NewFromString(total)
	if err != nil {
		return ledger.Enrollment{}, fmt.Errorf("corrupt total_hours %q: %w", total, err)
	}
	e.EnrollDate, _ = time.Parse(time.RFC3339, enrollDate)
	if validUntil != "" {
		e.ValidUntil, _ = time.Parse(time.RFC3339, validUntil)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
