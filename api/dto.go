/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

CONVENTIONS:
  - *Request: request body types from clients, with validator tags
  - *DTO / *Response: types returned to clients
  - Hours and money travel as decimal strings ("12.5"), never floats:
    the UI must not lose precision round-tripping balances
  - Dates travel as "2006-01-02"; the handler decomposes them into
    time.Time before the engine sees them

VALIDATION:
  Struct tags cover shape (required fields); the engine re-validates its
  own invariants (non-negative amounts, sufficient balance) and its typed
  errors drive the HTTP status.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/course-ledger/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PaymentRequest credits hours to a student's course balance, creating the
// enrollment on first payment.
type PaymentRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	CourseID      string `json:"course_id" validate:"required"`
	CoachID       string `json:"coach_id"`
	CourseTypeID  string `json:"course_type_id"`
	RegularHours  string `json:"regular_hours" validate:"required"`
	BonusHours    string `json:"bonus_hours"`
	Amount        string `json:"amount" validate:"required"`
	PaymentMethod string `json:"payment_method"`
	ValidUntil    string `json:"valid_until"` // YYYY-MM-DD, optional
	GiftItems     string `json:"gift_items"`
	Reason        string `json:"reason"`
}

type AttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	Hours     string `json:"hours" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=normal leave absent"`
	Reason    string `json:"reason"`
}

type RefundRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	CourseID       string `json:"course_id" validate:"required"`
	RefundHours    string `json:"refund_hours" validate:"required"`
	RefundAmount   string `json:"refund_amount" validate:"required"`
	HandlingFee    string `json:"handling_fee"`
	OtherDeduction string `json:"other_deduction"`
	Reason         string `json:"reason"`
}

type TransferRequest struct {
	FromStudentID   string `json:"from_student_id" validate:"required"`
	FromCourseID    string `json:"from_course_id" validate:"required"`
	ToStudentID     string `json:"to_student_id" validate:"required"`
	ToCourseID      string `json:"to_course_id" validate:"required"`
	ToCoachID       string `json:"to_coach_id"`
	ToCourseTypeID  string `json:"to_course_type_id"`
	Hours           string `json:"hours" validate:"required"`
	CompensationFee string `json:"compensation_fee"` // signed: positive = student owes
	NewValidUntil   string `json:"new_valid_until"`  // YYYY-MM-DD, optional
	Reason          string `json:"reason"`
}

type TransferClassRequest struct {
	StudentID       string `json:"student_id" validate:"required"`
	FromCourseID    string `json:"from_course_id" validate:"required"`
	ToCourseID      string `json:"to_course_id" validate:"required"`
	ToCoachID       string `json:"to_coach_id"`
	ToCourseTypeID  string `json:"to_course_type_id"`
	Hours           string `json:"hours" validate:"required"`
	CompensationFee string `json:"compensation_fee"`
	NewValidUntil   string `json:"new_valid_until"`
	Reason          string `json:"reason"`
}

type ShareRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	SourceCourseID string `json:"source_course_id" validate:"required"`
	TargetCourseID string `json:"target_course_id" validate:"required"`
	CoachID        string `json:"coach_id"`
	Reason         string `json:"reason"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EnrollmentDTO is the read-only projection of a balance. Status is the
// stored lifecycle state; EffectiveStatus folds in read-time expiry.
type EnrollmentDTO struct {
	StudentID       string `json:"student_id"`
	CourseID        string `json:"course_id"`
	CoachID         string `json:"coach_id,omitempty"`
	CourseTypeID    string `json:"course_type_id,omitempty"`
	RemainingHours  string `json:"remaining_hours"`
	TotalHours      string `json:"total_hours"`
	EnrollDate      string `json:"enroll_date,omitempty"`
	ValidUntil      string `json:"valid_until,omitempty"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	Version         int64  `json:"version"`
}

type RefundResponse struct {
	Enrollment   EnrollmentDTO `json:"enrollment"`
	ActualRefund string        `json:"actual_refund"`
}

type TransferResponse struct {
	Source      EnrollmentDTO `json:"source"`
	Destination EnrollmentDTO `json:"destination"`
}

type SharingLinkDTO struct {
	ID             string `json:"id"`
	StudentID      string `json:"student_id"`
	SourceCourseID string `json:"source_course_id"`
	TargetCourseID string `json:"target_course_id"`
	CoachID        string `json:"coach_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// RecordDTO flattens an audit record for history views. Details carries the
// kind-specific figures as decimal strings.
type RecordDTO struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	At        string            `json:"at"`
	StudentID string            `json:"student_id"`
	CourseID  string            `json:"course_id"`
	Reason    string            `json:"reason,omitempty"`
	Details   map[string]string `json:"details"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toEnrollmentDTO(e ledger.Enrollment, now time.Time) EnrollmentDTO {
	dto := EnrollmentDTO{
		StudentID:       string(e.StudentID),
		CourseID:        string(e.CourseID),
		CoachID:         e.CoachID,
		CourseTypeID:    e.CourseTypeID,
		RemainingHours:  e.RemainingHours.String(),
		TotalHours:      e.TotalHours.String(),
		Status:          string(e.Status),
		EffectiveStatus: string(e.EffectiveStatus(now)),
		Version:         e.Version,
	}
	if !e.EnrollDate.IsZero() {
		dto.EnrollDate = e.EnrollDate.Format(dateLayout)
	}
	if !e.ValidUntil.IsZero() {
		dto.ValidUntil = e.ValidUntil.Format(dateLayout)
	}
	return dto
}

func toSharingLinkDTO(link ledger.SharingLink) SharingLinkDTO {
	return SharingLinkDTO{
		ID:             link.ID,
		StudentID:      string(link.StudentID),
		SourceCourseID: string(link.SourceCourseID),
		TargetCourseID: string(link.TargetCourseID),
		CoachID:        link.CoachID,
		CreatedAt:      link.CreatedAt.Format(time.RFC3339),
	}
}

func toRecordDTO(rec ledger.Record) RecordDTO {
	h := rec.Header()
	dto := RecordDTO{
		ID:        h.ID,
		Kind:      string(rec.Kind()),
		At:        h.At.Format(time.RFC3339),
		StudentID: string(h.StudentID),
		CourseID:  string(h.CourseID),
		Reason:    h.Reason,
		Details:   map[string]string{},
	}

	switch r := rec.(type) {
	case ledger.PaymentRecord:
		dto.Details["regular_hours"] = r.RegularHours.String()
		dto.Details["bonus_hours"] = r.BonusHours.String()
		dto.Details["amount"] = r.Amount.String()
		if r.PaymentMethod != "" {
			dto.Details["payment_method"] = r.PaymentMethod
		}
		if r.GiftItems != "" {
			dto.Details["gift_items"] = r.GiftItems
		}
		if !r.ValidUntil.IsZero() {
			dto.Details["valid_until"] = r.ValidUntil.Format(dateLayout)
		}
	case ledger.AttendanceRecord:
		dto.Details["hours"] = r.Hours.String()
		dto.Details["type"] = string(r.Type)
	case ledger.RefundRecord:
		dto.Details["refund_hours"] = r.RefundHours.String()
		dto.Details["refund_amount"] = r.RefundAmount.String()
		dto.Details["handling_fee"] = r.HandlingFee.String()
		dto.Details["other_deduction"] = r.OtherDeduction.String()
		dto.Details["actual_refund"] = r.ActualRefund.String()
	case ledger.TransferRecord:
		dto.Details["to_student_id"] = string(r.ToStudentID)
		dto.Details["to_course_id"] = string(r.ToCourseID)
		dto.Details["hours"] = r.Hours.String()
		dto.Details["compensation_fee"] = r.CompensationFee.String()
	case ledger.SharingRecord:
		dto.Details["link_id"] = r.LinkID
		dto.Details["target_course_id"] = string(r.TargetCourseID)
	}
	return dto
}
