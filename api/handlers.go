/*
handlers.go - HTTP API handlers for the enrollment ledger

PURPOSE:
  Exposes the course-hour engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the engine: the
  handlers decompose display inputs (decimal strings, ISO dates) into
  concrete values before the engine sees them and never compute balances
  themselves.

ENDPOINTS:
  Mutations:
    POST   /api/enrollments/payment
    POST   /api/enrollments/attendance
    POST   /api/enrollments/refund
    POST   /api/enrollments/transfer
    POST   /api/enrollments/transfer-class
    POST   /api/sharing
    DELETE /api/sharing/{id}

  Reads:
    GET /api/students/{studentID}/enrollments
    GET /api/students/{studentID}/courses/{courseID}
    GET /api/students/{studentID}/courses/{courseID}/history
    GET /api/students/{studentID}/sharing

  Scenarios (dev):
    GET  /api/scenarios
    POST /api/scenarios/load

ERROR HANDLING:
  The engine's typed errors map to HTTP status:
  - 400: InvalidAmount, InsufficientHours, InvalidStatusTransition,
         malformed body
  - 404: NotFound
  - 409: VersionConflict (after the engine's internal retries)
  - 500: everything else

SECURITY NOTE:
  No authentication middleware. The back-office gateway in front of this
  service owns authn/authz.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Processor
	Log    *zap.Logger

	validate *validator.Validate

	// Optional: enables the demo scenario endpoints.
	resetter Resetter
}

// Resetter clears all persisted data. Dev/demo only; production stores
// should not be wired with one.
type Resetter interface {
	Reset(ctx context.Context) error
}

// WithResetter enables the scenario endpoints against a resettable store.
func (h *Handler) WithResetter(r Resetter) *Handler {
	h.resetter = r
	return h
}

// NewHandler creates a handler around the engine.
func NewHandler(engine *ledger.Processor, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// MUTATION ENDPOINTS
// =============================================================================

// Payment handles POST /api/enrollments/payment.
func (h *Handler) Payment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	regular, ok := h.parseDecimal(w, "regular_hours", req.RegularHours)
	if !ok {
		return
	}
	bonus, ok := h.parseDecimalOptional(w, "bonus_hours", req.BonusHours)
	if !ok {
		return
	}
	amount, ok := h.parseDecimal(w, "amount", req.Amount)
	if !ok {
		return
	}
	validUntil, ok := h.parseDateOptional(w, "valid_until", req.ValidUntil)
	if !ok {
		return
	}

	e, err := h.Engine.Payment(r.Context(), ledger.PaymentParams{
		StudentID:     ledger.StudentID(req.StudentID),
		CourseID:      ledger.CourseID(req.CourseID),
		CoachID:       req.CoachID,
		CourseTypeID:  req.CourseTypeID,
		RegularHours:  regular,
		BonusHours:    bonus,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		ValidUntil:    validUntil,
		GiftItems:     req.GiftItems,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Payment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentDTO(e, time.Now()))
}

// Attendance handles POST /api/enrollments/attendance.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	hours, ok := h.parseDecimal(w, "hours", req.Hours)
	if !ok {
		return
	}

	e, err := h.Engine.Attendance(r.Context(), ledger.AttendanceParams{
		StudentID: ledger.StudentID(req.StudentID),
		CourseID:  ledger.CourseID(req.CourseID),
		Hours:     hours,
		Type:      ledger.AttendanceType(req.Type),
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Attendance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentDTO(e, time.Now()))
}

// Refund handles POST /api/enrollments/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}

	refundHours, ok := h.parseDecimal(w, "refund_hours", req.RefundHours)
	if !ok {
		return
	}
	refundAmount, ok := h.parseDecimal(w, "refund_amount", req.RefundAmount)
	if !ok {
		return
	}
	handlingFee, ok := h.parseDecimalOptional(w, "handling_fee", req.HandlingFee)
	if !ok {
		return
	}
	otherDeduction, ok := h.parseDecimalOptional(w, "other_deduction", req.OtherDeduction)
	if !ok {
		return
	}

	e, actual, err := h.Engine.Refund(r.Context(), ledger.RefundParams{
		StudentID:      ledger.StudentID(req.StudentID),
		CourseID:       ledger.CourseID(req.CourseID),
		RefundHours:    refundHours,
		RefundAmount:   refundAmount,
		HandlingFee:    handlingFee,
		OtherDeduction: otherDeduction,
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Refund failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{
		Enrollment:   toEnrollmentDTO(e, time.Now()),
		ActualRefund: actual.String(),
	})
}

// Transfer handles POST /api/enrollments/transfer.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	hours, ok := h.parseDecimal(w, "hours", req.Hours)
	if !ok {
		return
	}
	fee, ok := h.parseDecimalOptional(w, "compensation_fee", req.CompensationFee)
	if !ok {
		return
	}
	validUntil, ok := h.parseDateOptional(w, "new_valid_until", req.NewValidUntil)
	if !ok {
		return
	}

	src, dst, err := h.Engine.Transfer(r.Context(), ledger.TransferParams{
		FromStudentID:   ledger.StudentID(req.FromStudentID),
		FromCourseID:    ledger.CourseID(req.FromCourseID),
		ToStudentID:     ledger.StudentID(req.ToStudentID),
		ToCourseID:      ledger.CourseID(req.ToCourseID),
		ToCoachID:       req.ToCoachID,
		ToCourseTypeID:  req.ToCourseTypeID,
		Hours:           hours,
		CompensationFee: fee,
		NewValidUntil:   validUntil,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Transfer failed", err)
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, TransferResponse{
		Source:      toEnrollmentDTO(src, now),
		Destination: toEnrollmentDTO(dst, now),
	})
}

// TransferClass handles POST /api/enrollments/transfer-class.
func (h *Handler) TransferClass(w http.ResponseWriter, r *http.Request) {
	var req TransferClassRequest
	if !h.decode(w, r, &req) {
		return
	}

	hours, ok := h.parseDecimal(w, "hours", req.Hours)
	if !ok {
		return
	}
	fee, ok := h.parseDecimalOptional(w, "compensation_fee", req.CompensationFee)
	if !ok {
		return
	}
	validUntil, ok := h.parseDateOptional(w, "new_valid_until", req.NewValidUntil)
	if !ok {
		return
	}

	old, next, err := h.Engine.TransferClass(r.Context(), ledger.TransferClassParams{
		StudentID:       ledger.StudentID(req.StudentID),
		FromCourseID:    ledger.CourseID(req.FromCourseID),
		ToCourseID:      ledger.CourseID(req.ToCourseID),
		ToCoachID:       req.ToCoachID,
		ToCourseTypeID:  req.ToCourseTypeID,
		Hours:           hours,
		CompensationFee: fee,
		NewValidUntil:   validUntil,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Class transfer failed", err)
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, TransferResponse{
		Source:      toEnrollmentDTO(old, now),
		Destination: toEnrollmentDTO(next, now),
	})
}

// Share handles POST /api/sharing.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if !h.decode(w, r, &req) {
		return
	}

	link, err := h.Engine.Share(r.Context(), ledger.ShareParams{
		StudentID:      ledger.StudentID(req.StudentID),
		SourceCourseID: ledger.CourseID(req.SourceCourseID),
		TargetCourseID: ledger.CourseID(req.TargetCourseID),
		CoachID:        req.CoachID,
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, "Share failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSharingLinkDTO(link))
}

// Unshare handles DELETE /api/sharing/{id}. Deleting an absent link is a
// success: the caller may have raced another removal.
func (h *Handler) Unshare(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "id")
	if err := h.Engine.Unshare(r.Context(), linkID); err != nil {
		h.writeEngineError(w, "Unshare failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

// ListEnrollments handles GET /api/students/{studentID}/enrollments.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "studentID"))

	enrollments, err := h.Engine.ListEnrollments(r.Context(), studentID)
	if err != nil {
		h.writeEngineError(w, "Failed to list enrollments", err)
		return
	}

	now := time.Now()
	dtos := make([]EnrollmentDTO, 0, len(enrollments))
	for _, e := range enrollments {
		dtos = append(dtos, toEnrollmentDTO(e, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEnrollment handles GET /api/students/{studentID}/courses/{courseID}.
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "studentID"))
	courseID := ledger.CourseID(chi.URLParam(r, "courseID"))

	e, err := h.Engine.GetEnrollment(r.Context(), studentID, courseID)
	if err != nil {
		h.writeEngineError(w, "Failed to get enrollment", err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentDTO(e, time.Now()))
}

// History handles GET /api/students/{studentID}/courses/{courseID}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "studentID"))
	courseID := ledger.CourseID(chi.URLParam(r, "courseID"))

	records, err := h.Engine.History(r.Context(), studentID, courseID)
	if err != nil {
		h.writeEngineError(w, "Failed to get history", err)
		return
	}

	dtos := make([]RecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListSharing handles GET /api/students/{studentID}/sharing.
func (h *Handler) ListSharing(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "studentID"))

	links, err := h.Engine.ListSharing(r.Context(), studentID)
	if err != nil {
		h.writeEngineError(w, "Failed to list sharing links", err)
		return
	}

	dtos := make([]SharingLinkDTO, 0, len(links))
	for _, link := range links {
		dtos = append(dtos, toSharingLinkDTO(link))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// decode parses and validates the JSON body, writing the 400 itself on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func (h *Handler) parseDecimal(w http.ResponseWriter, field, value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid decimal for "+field, err)
		return decimal.Decimal{}, false
	}
	return d, true
}

// parseDecimalOptional treats an empty string as zero.
func (h *Handler) parseDecimalOptional(w http.ResponseWriter, field, value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, true
	}
	return h.parseDecimal(w, field, value)
}

// parseDateOptional treats an empty string as the zero time.
func (h *Handler) parseDateOptional(w http.ResponseWriter, field, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date for "+field+" (use YYYY-MM-DD)", err)
		return time.Time{}, false
	}
	return t, true
}

// writeEngineError maps the engine's typed errors to HTTP status.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrVersionConflict):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error("internal error", zap.String("message", message), zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
