/*
processor.go - The transaction processor: six mutations over the store

PURPOSE:
  Orchestrates the engine's full external surface. Each operation is a
  synchronous state transition: validate against current store state, derive
  deltas, commit atomically with an audit record, return the new balances or
  a typed error. Nothing partial is ever persisted.

OPERATIONS:
  Payment        credit hours, extend validity; sole creator of enrollments
  Attendance     deduct hours (normal/absent) or log excused leave
  Refund         deduct hours, compute net refund, terminal status at zero
  Transfer       move hours to another student's enrollment (atomic pair)
  TransferClass  move hours to another course of the same student
  Share/Unshare  grant/remove a sharing link (no hour movement)

CONCURRENCY:
  Optimistic versioning with bounded retry. On ErrVersionConflict the
  operation re-reads and re-validates from scratch (the balance may have
  changed, so preconditions must be checked again), up to maxAttempts, then
  the conflict is surfaced to the caller as transient.

  Pair commits rely on the store applying version checks in EnrollmentKey
  order so opposite-direction transfers cannot deadlock.

WHAT THE ENGINE DOES NOT DO:
  - Settle money. Refund figures and transfer price differences are
    recorded; payment collection lives with the caller.
  - Gate on expiry. ValidUntil in the past never blocks a mutation here;
    expiry is caller policy and a read-time display status.
  - Parse display state. Callers supply decomposed numeric parameters.

SEE ALSO:
  - check.go: Preconditions applied before every commit
  - calc.go: Refund arithmetic
  - store.go: Atomic commit contract
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxAttempts bounds internal retries on version conflicts.
const maxAttempts = 3

// Processor applies the six mutation operations against a Store.
// Safe for concurrent use: all state lives in the store.
type Processor struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewProcessor creates a processor. A nil logger disables logging.
func NewProcessor(store Store, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// PAYMENT - Credit hours, extend validity; the only creator of enrollments
// =============================================================================

type PaymentParams struct {
	StudentID    StudentID
	CourseID     CourseID
	CoachID      string
	CourseTypeID string

	RegularHours  decimal.Decimal
	BonusHours    decimal.Decimal
	Amount        decimal.Decimal
	PaymentMethod string
	ValidUntil    time.Time
	GiftItems     string
	Reason        string
}

// Payment credits regular+bonus hours to the enrollment, creating it with
// StatusStudying if absent. ValidUntil only ever extends: a renewal can
// never shorten an already-paid validity window.
func (p *Processor) Payment(ctx context.Context, params PaymentParams) (Enrollment, error) {
	if err := ValidateNonNegative("regularHours", params.RegularHours); err != nil {
		return Enrollment{}, err
	}
	if err := ValidateNonNegative("bonusHours", params.BonusHours); err != nil {
		return Enrollment{}, err
	}
	if err := ValidateNonNegative("amount", params.Amount); err != nil {
		return Enrollment{}, err
	}

	granted := params.RegularHours.Add(params.BonusHours)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		e, err := p.store.Get(ctx, params.StudentID, params.CourseID)
		var expected int64
		switch {
		case errors.Is(err, ErrNotFound):
			e = Enrollment{
				StudentID:      params.StudentID,
				CourseID:       params.CourseID,
				CoachID:        params.CoachID,
				CourseTypeID:   params.CourseTypeID,
				RemainingHours: decimal.Zero,
				TotalHours:     decimal.Zero,
				EnrollDate:     p.now(),
				Status:         StatusStudying,
			}
			expected = 0
		case err != nil:
			return Enrollment{}, err
		default:
			if err := CanMutate(e); err != nil {
				return Enrollment{}, err
			}
			// A renewal payment reactivates a waiting enrollment.
			if e.Status == StatusWaitingPayment || e.Status == StatusWaitingRenewal {
				e.Status = StatusStudying
			}
			expected = e.Version
		}

		e.RemainingHours = e.RemainingHours.Add(granted)
		e.TotalHours = e.TotalHours.Add(granted)
		if params.ValidUntil.After(e.ValidUntil) {
			e.ValidUntil = params.ValidUntil
		}
		e.Version = expected + 1

		rec := PaymentRecord{
			RecordHeader:  p.header(params.StudentID, params.CourseID, params.Reason),
			RegularHours:  params.RegularHours,
			BonusHours:    params.BonusHours,
			Amount:        RoundMoney(params.Amount),
			PaymentMethod: params.PaymentMethod,
			ValidUntil:    e.ValidUntil,
			GiftItems:     params.GiftItems,
		}

		err = p.store.Put(ctx, e, expected, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Enrollment{}, err
		}

		p.log.Info("payment committed",
			zap.String("student", string(e.StudentID)),
			zap.String("course", string(e.CourseID)),
			zap.String("granted", granted.String()),
			zap.String("remaining", e.RemainingHours.String()))
		return e, nil
	}
	return Enrollment{}, ErrVersionConflict
}

// =============================================================================
// ATTENDANCE - The only debit the student does not authorize per-transaction
// =============================================================================

type AttendanceParams struct {
	StudentID StudentID
	CourseID  CourseID
	Hours     decimal.Decimal
	Type      AttendanceType
	Reason    string
}

// Attendance records a class session. Normal and absent sessions deduct
// hours and must pass CanDeduct: recording attendance beyond the balance is
// rejected, never clamped. Leave is audit-only and touches no balance.
func (p *Processor) Attendance(ctx context.Context, params AttendanceParams) (Enrollment, error) {
	if !params.Type.Valid() {
		return Enrollment{}, fmt.Errorf("%w: unknown attendance type %q", ErrInvalidAmount, params.Type)
	}
	if err := ValidateNonNegative("hours", params.Hours); err != nil {
		return Enrollment{}, err
	}

	if !params.Type.Deducts() {
		e, err := p.store.Get(ctx, params.StudentID, params.CourseID)
		if err != nil {
			return Enrollment{}, err
		}
		rec := AttendanceRecord{
			RecordHeader: p.header(params.StudentID, params.CourseID, params.Reason),
			Hours:        params.Hours,
			Type:         params.Type,
		}
		if err := p.store.AppendRecord(ctx, rec); err != nil {
			return Enrollment{}, err
		}
		return e, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		e, err := p.store.Get(ctx, params.StudentID, params.CourseID)
		if err != nil {
			return Enrollment{}, err
		}
		if err := CanMutate(e); err != nil {
			return Enrollment{}, err
		}
		if err := CanDeduct(e, params.Hours); err != nil {
			return Enrollment{}, err
		}

		expected := e.Version
		e.RemainingHours = e.RemainingHours.Sub(params.Hours)
		e.Version = expected + 1

		rec := AttendanceRecord{
			RecordHeader: p.header(params.StudentID, params.CourseID, params.Reason),
			Hours:        params.Hours,
			Type:         params.Type,
		}

		err = p.store.Put(ctx, e, expected, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Enrollment{}, err
		}

		p.log.Info("attendance committed",
			zap.String("student", string(e.StudentID)),
			zap.String("course", string(e.CourseID)),
			zap.String("type", string(params.Type)),
			zap.String("remaining", e.RemainingHours.String()))
		return e, nil
	}
	return Enrollment{}, ErrVersionConflict
}

// =============================================================================
// REFUND - Return hours; terminal status when the balance reaches zero
// =============================================================================

type RefundParams struct {
	StudentID      StudentID
	CourseID       CourseID
	RefundHours    decimal.Decimal
	RefundAmount   decimal.Decimal
	HandlingFee    decimal.Decimal
	OtherDeduction decimal.Decimal
	Reason         string
}

// Refund deducts the refunded hours and computes the net amount owed to the
// student. A refund that empties the balance moves the enrollment to the
// terminal StatusRefunded; a partial refund leaves the status alone, so the
// student keeps studying on the residual.
func (p *Processor) Refund(ctx context.Context, params RefundParams) (Enrollment, decimal.Decimal, error) {
	for _, check := range []struct {
		field string
		value decimal.Decimal
	}{
		{"refundHours", params.RefundHours},
		{"refundAmount", params.RefundAmount},
		{"handlingFee", params.HandlingFee},
		{"otherDeduction", params.OtherDeduction},
	} {
		if err := ValidateNonNegative(check.field, check.value); err != nil {
			return Enrollment{}, decimal.Zero, err
		}
	}

	actual := ActualRefund(params.RefundAmount, params.HandlingFee, params.OtherDeduction)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		e, err := p.store.Get(ctx, params.StudentID, params.CourseID)
		if err != nil {
			return Enrollment{}, decimal.Zero, err
		}
		if err := CanMutate(e); err != nil {
			return Enrollment{}, decimal.Zero, err
		}
		if err := CanDeduct(e, params.RefundHours); err != nil {
			return Enrollment{}, decimal.Zero, err
		}

		expected := e.Version
		e.RemainingHours = e.RemainingHours.Sub(params.RefundHours)
		if e.RemainingHours.IsZero() {
			if !CanTransition(e.Status, StatusRefunded) {
				return Enrollment{}, decimal.Zero, &StatusTransitionError{Key: e.Key(), From: e.Status, To: StatusRefunded}
			}
			e.Status = StatusRefunded
		}
		e.Version = expected + 1

		rec := RefundRecord{
			RecordHeader:   p.header(params.StudentID, params.CourseID, params.Reason),
			RefundHours:    params.RefundHours,
			RefundAmount:   RoundMoney(params.RefundAmount),
			HandlingFee:    RoundMoney(params.HandlingFee),
			OtherDeduction: RoundMoney(params.OtherDeduction),
			ActualRefund:   actual,
		}

		err = p.store.Put(ctx, e, expected, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Enrollment{}, decimal.Zero, err
		}

		p.log.Info("refund committed",
			zap.String("student", string(e.StudentID)),
			zap.String("course", string(e.CourseID)),
			zap.String("hours", params.RefundHours.String()),
			zap.String("actualRefund", actual.String()),
			zap.String("status", string(e.Status)))
		return e, actual, nil
	}
	return Enrollment{}, decimal.Zero, ErrVersionConflict
}

// =============================================================================
// TRANSFER / TRANSFER CLASS - Conserved hour movement between two enrollments
// =============================================================================

type TransferParams struct {
	FromStudentID StudentID
	FromCourseID  CourseID
	ToStudentID   StudentID
	ToCourseID    CourseID

	// Denormalized refs for a destination created by this transfer.
	ToCoachID      string
	ToCourseTypeID string

	Hours           decimal.Decimal
	CompensationFee decimal.Decimal // signed price difference, recorded only
	NewValidUntil   time.Time       // zero = keep destination's validity
	Reason          string
}

// Transfer moves hours from one student's enrollment to another student's,
// conserving the total: source loses exactly Hours, destination gains
// exactly Hours, committed as one store transaction. The destination is
// created if absent, under the same rule as Payment. CompensationFee is the
// price difference settled outside the engine; it is only logged.
func (p *Processor) Transfer(ctx context.Context, params TransferParams) (Enrollment, Enrollment, error) {
	return p.transfer(ctx, params, false)
}

type TransferClassParams struct {
	StudentID    StudentID
	FromCourseID CourseID
	ToCourseID   CourseID

	ToCoachID       string
	ToCourseTypeID  string
	Hours           decimal.Decimal
	CompensationFee decimal.Decimal
	NewValidUntil   time.Time
	Reason          string
}

// TransferClass moves hours between two courses of the same student.
// Callers typically pass the full remaining balance to close out the old
// course, but partial moves are allowed; the engine does not mandate
// closure.
func (p *Processor) TransferClass(ctx context.Context, params TransferClassParams) (Enrollment, Enrollment, error) {
	return p.transfer(ctx, TransferParams{
		FromStudentID:   params.StudentID,
		FromCourseID:    params.FromCourseID,
		ToStudentID:     params.StudentID,
		ToCourseID:      params.ToCourseID,
		ToCoachID:       params.ToCoachID,
		ToCourseTypeID:  params.ToCourseTypeID,
		Hours:           params.Hours,
		CompensationFee: params.CompensationFee,
		NewValidUntil:   params.NewValidUntil,
		Reason:          params.Reason,
	}, true)
}

func (p *Processor) transfer(ctx context.Context, params TransferParams, sameStudent bool) (Enrollment, Enrollment, error) {
	srcKey := EnrollmentKey{StudentID: params.FromStudentID, CourseID: params.FromCourseID}
	dstKey := EnrollmentKey{StudentID: params.ToStudentID, CourseID: params.ToCourseID}
	if srcKey == dstKey {
		return Enrollment{}, Enrollment{}, fmt.Errorf("%w: source and destination are the same enrollment", ErrInvalidAmount)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		src, err := p.store.Get(ctx, srcKey.StudentID, srcKey.CourseID)
		if err != nil {
			return Enrollment{}, Enrollment{}, err
		}
		if err := CanMutate(src); err != nil {
			return Enrollment{}, Enrollment{}, err
		}
		if err := CanTransfer(params.Hours, src); err != nil {
			return Enrollment{}, Enrollment{}, err
		}

		dst, err := p.store.Get(ctx, dstKey.StudentID, dstKey.CourseID)
		var expectedDst int64
		switch {
		case errors.Is(err, ErrNotFound):
			dst = Enrollment{
				StudentID:      dstKey.StudentID,
				CourseID:       dstKey.CourseID,
				CoachID:        params.ToCoachID,
				CourseTypeID:   params.ToCourseTypeID,
				RemainingHours: decimal.Zero,
				TotalHours:     decimal.Zero,
				EnrollDate:     p.now(),
				Status:         StatusStudying,
			}
			expectedDst = 0
		case err != nil:
			return Enrollment{}, Enrollment{}, err
		default:
			if err := CanMutate(dst); err != nil {
				return Enrollment{}, Enrollment{}, err
			}
			expectedDst = dst.Version
		}

		expectedSrc := src.Version
		src.RemainingHours = src.RemainingHours.Sub(params.Hours)
		src.Version = expectedSrc + 1

		dst.RemainingHours = dst.RemainingHours.Add(params.Hours)
		dst.TotalHours = dst.TotalHours.Add(params.Hours)
		if !params.NewValidUntil.IsZero() {
			dst.ValidUntil = params.NewValidUntil
		}
		dst.Version = expectedDst + 1

		rec := TransferRecord{
			RecordHeader:    p.header(srcKey.StudentID, srcKey.CourseID, params.Reason),
			ToStudentID:     dstKey.StudentID,
			ToCourseID:      dstKey.CourseID,
			Hours:           params.Hours,
			CompensationFee: RoundMoney(params.CompensationFee),
			SameStudent:     sameStudent,
		}

		err = p.store.PutPair(ctx, src, expectedSrc, dst, expectedDst, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Enrollment{}, Enrollment{}, err
		}

		p.log.Info("transfer committed",
			zap.String("from", srcKey.String()),
			zap.String("to", dstKey.String()),
			zap.String("hours", params.Hours.String()),
			zap.Bool("sameStudent", sameStudent))
		return src, dst, nil
	}
	return Enrollment{}, Enrollment{}, ErrVersionConflict
}

// =============================================================================
// SHARE / UNSHARE - Capability grants, not financial transactions
// =============================================================================

type ShareParams struct {
	StudentID      StudentID
	SourceCourseID CourseID
	TargetCourseID CourseID
	CoachID        string
	Reason         string
}

// Share lets TargetCourseID draw on the enrollment's hour pool. No balance
// check, no hour movement: the link is a capability grant. The source
// enrollment must exist; there is nothing to share otherwise.
func (p *Processor) Share(ctx context.Context, params ShareParams) (SharingLink, error) {
	if params.SourceCourseID == params.TargetCourseID {
		return SharingLink{}, fmt.Errorf("%w: target course equals source course", ErrInvalidAmount)
	}

	if _, err := p.store.Get(ctx, params.StudentID, params.SourceCourseID); err != nil {
		return SharingLink{}, err
	}

	link := SharingLink{
		ID:             uuid.NewString(),
		StudentID:      params.StudentID,
		SourceCourseID: params.SourceCourseID,
		TargetCourseID: params.TargetCourseID,
		CoachID:        params.CoachID,
		CreatedAt:      p.now(),
	}
	rec := SharingRecord{
		RecordHeader:   p.header(params.StudentID, params.SourceCourseID, params.Reason),
		LinkID:         link.ID,
		TargetCourseID: params.TargetCourseID,
	}
	if err := p.store.CreateLink(ctx, link, rec); err != nil {
		return SharingLink{}, err
	}

	p.log.Info("sharing link created",
		zap.String("student", string(params.StudentID)),
		zap.String("source", string(params.SourceCourseID)),
		zap.String("target", string(params.TargetCourseID)),
		zap.String("link", link.ID))
	return link, nil
}

// Unshare removes a sharing link by id. Removing an absent link succeeds:
// the caller may have already removed it concurrently, and the end state is
// identical either way.
func (p *Processor) Unshare(ctx context.Context, linkID string) error {
	link, err := p.store.GetLink(ctx, linkID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rec := SharingRecord{
		RecordHeader:   p.header(link.StudentID, link.SourceCourseID, ""),
		LinkID:         link.ID,
		TargetCourseID: link.TargetCourseID,
		Removed:        true,
	}
	deleted, err := p.store.DeleteLink(ctx, linkID, rec)
	if err != nil {
		return err
	}
	if deleted {
		p.log.Info("sharing link removed", zap.String("link", linkID))
	}
	return nil
}

// =============================================================================
// READ SURFACE - Projections for listings and history views
// =============================================================================

func (p *Processor) GetEnrollment(ctx context.Context, studentID StudentID, courseID CourseID) (Enrollment, error) {
	return p.store.Get(ctx, studentID, courseID)
}

func (p *Processor) ListEnrollments(ctx context.Context, studentID StudentID) ([]Enrollment, error) {
	return p.store.ListByStudent(ctx, studentID)
}

func (p *Processor) History(ctx context.Context, studentID StudentID, courseID CourseID) ([]Record, error) {
	return p.store.History(ctx, studentID, courseID)
}

func (p *Processor) ListSharing(ctx context.Context, studentID StudentID) ([]SharingLink, error) {
	return p.store.ListLinks(ctx, studentID)
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Processor) header(studentID StudentID, courseID CourseID, reason string) RecordHeader {
	return RecordHeader{
		ID:        uuid.NewString(),
		At:        p.now(),
		StudentID: studentID,
		CourseID:  courseID,
		Reason:    reason,
	}
}
