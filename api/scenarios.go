/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos of the back-office UI. Each scenario resets the store
	and replays real engine operations, so the seeded state is exactly
	what production mutations would have produced - including the audit
	trail.

AVAILABLE SCENARIOS:

	fresh-institute:  Two students, first payments only
	mid-term:         Payments plus attendance, one excused leave
	transfer-dispute: A cross-student transfer and a partial refund

HOW SCENARIOS WORK:
 1. Reset store (requires a Resetter; endpoints 404 otherwise)
 2. Replay Payment/Attendance/Refund/Transfer calls through the engine

NOTE:

	Scenarios reset the store. Only wire a Resetter in development/demo
	environments.

SEE ALSO:
  - handlers.go: Handler context and error mapping
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-institute",
		Name:        "Fresh Institute",
		Description: "Two students with first course payments, nothing consumed",
	},
	{
		ID:          "mid-term",
		Name:        "Mid-Term",
		Description: "Payments plus attendance history, including an excused leave",
	},
	{
		ID:          "transfer-dispute",
		Name:        "Transfer Dispute",
		Description: "A cross-student transfer with a compensation fee and a partial refund",
	},
}

// ListScenarios handles GET /api/scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario handles POST /api/scenarios/load.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-institute":
		err = h.loadFreshInstitute(ctx)
	case "mid-term":
		err = h.loadMidTerm(ctx)
	case "transfer-dispute":
		err = h.loadTransferDispute(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshInstitute(ctx context.Context) error {
	term := endOfTerm()

	if _, err := h.Engine.Payment(ctx, ledger.PaymentParams{
		StudentID:     "stu-alice",
		CourseID:      "crs-piano",
		CoachID:       "coach-ivy",
		CourseTypeID:  "one-on-one",
		RegularHours:  ledger.MustParseDecimal("20"),
		BonusHours:    ledger.MustParseDecimal("2"),
		Amount:        ledger.MustParseDecimal("4400"),
		PaymentMethod: "card",
		ValidUntil:    term,
		Reason:        "initial enrollment",
	}); err != nil {
		return err
	}

	_, err := h.Engine.Payment(ctx, ledger.PaymentParams{
		StudentID:     "stu-bob",
		CourseID:      "crs-guitar",
		CoachID:       "coach-marco",
		CourseTypeID:  "group",
		RegularHours:  ledger.MustParseDecimal("16"),
		Amount:        ledger.MustParseDecimal("2400"),
		PaymentMethod: "transfer",
		ValidUntil:    term,
		Reason:        "initial enrollment",
	})
	return err
}

func (h *Handler) loadMidTerm(ctx context.Context) error {
	if err := h.loadFreshInstitute(ctx); err != nil {
		return err
	}

	sessions := []ledger.AttendanceParams{
		{StudentID: "stu-alice", CourseID: "crs-piano", Hours: ledger.MustParseDecimal("1"), Type: ledger.AttendanceNormal},
		{StudentID: "stu-alice", CourseID: "crs-piano", Hours: ledger.MustParseDecimal("1"), Type: ledger.AttendanceNormal},
		{StudentID: "stu-alice", CourseID: "crs-piano", Hours: ledger.MustParseDecimal("1"), Type: ledger.AttendanceLeave, Reason: "sick"},
		{StudentID: "stu-bob", CourseID: "crs-guitar", Hours: ledger.MustParseDecimal("2"), Type: ledger.AttendanceNormal},
		{StudentID: "stu-bob", CourseID: "crs-guitar", Hours: ledger.MustParseDecimal("2"), Type: ledger.AttendanceAbsent, Reason: "no-show"},
	}
	for _, s := range sessions {
		if _, err := h.Engine.Attendance(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadTransferDispute(ctx context.Context) error {
	if err := h.loadMidTerm(ctx); err != nil {
		return err
	}

	if _, _, err := h.Engine.Transfer(ctx, ledger.TransferParams{
		FromStudentID:   "stu-alice",
		FromCourseID:    "crs-piano",
		ToStudentID:     "stu-bob",
		ToCourseID:      "crs-piano",
		ToCoachID:       "coach-ivy",
		ToCourseTypeID:  "one-on-one",
		Hours:           ledger.MustParseDecimal("5"),
		CompensationFee: ledger.MustParseDecimal("150"),
		Reason:          "sibling takeover",
	}); err != nil {
		return err
	}

	_, _, err := h.Engine.Refund(ctx, ledger.RefundParams{
		StudentID:    "stu-bob",
		CourseID:     "crs-guitar",
		RefundHours:  ledger.MustParseDecimal("4"),
		RefundAmount: ledger.MustParseDecimal("600"),
		HandlingFee:  ledger.MustParseDecimal("50"),
		Reason:       "schedule conflict",
	})
	return err
}

// endOfTerm is six months out, a realistic validity window for seeds.
func endOfTerm() time.Time {
	return time.Now().UTC().AddDate(0, 6, 0).Truncate(24 * time.Hour)
}
