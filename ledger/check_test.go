package ledger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// BALANCE PREDICATES
// =============================================================================

func TestCanDeduct_WithinBalance(t *testing.T) {
	e := enrollment("stu-1", "crs-1", "10")
	assert.NoError(t, ledger.CanDeduct(e, dec("10")))
	assert.NoError(t, ledger.CanDeduct(e, dec("0")))
}

func TestCanDeduct_ExceedsBalance(t *testing.T) {
	// GIVEN: 3 hours remaining
	// WHEN: deducting 5
	// THEN: InsufficientHours with the exact shortfall, never clamped

	e := enrollment("stu-1", "crs-1", "3")
	err := ledger.CanDeduct(e, dec("5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientHours))

	var detail *ledger.InsufficientHoursError
	require.True(t, errors.As(err, &detail))
	assert.True(t, dec("3").Equal(detail.Available))
	assert.True(t, dec("5").Equal(detail.Requested))
	assert.True(t, dec("2").Equal(detail.Shortfall()))
}

func TestCanTransfer_RequiresPositiveHours(t *testing.T) {
	e := enrollment("stu-1", "crs-1", "10")

	err := ledger.CanTransfer(dec("0"), e)
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))

	err = ledger.CanTransfer(dec("-1"), e)
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))

	assert.NoError(t, ledger.CanTransfer(dec("10"), e))

	err = ledger.CanTransfer(dec("11"), e)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientHours))
}

// =============================================================================
// LIFECYCLE PREDICATES
// =============================================================================

func TestCanTransition_AllowedMoves(t *testing.T) {
	allowed := []struct{ from, to ledger.Status }{
		{ledger.StatusPending, ledger.StatusStudying},
		{ledger.StatusStudying, ledger.StatusWaitingRenewal},
		{ledger.StatusWaitingRenewal, ledger.StatusStudying},
		{ledger.StatusStudying, ledger.StatusRefunded},
		{ledger.StatusStudying, ledger.StatusGraduated},
		{ledger.StatusWaitingPayment, ledger.StatusStudying},
		{ledger.StatusStudying, ledger.StatusStudying}, // self
	}
	for _, tc := range allowed {
		assert.True(t, ledger.CanTransition(tc.from, tc.to),
			"expected %s -> %s to be allowed", tc.from, tc.to)
	}
}

func TestCanTransition_TerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []ledger.Status{ledger.StatusGraduated, ledger.StatusRefunded} {
		for _, to := range []ledger.Status{ledger.StatusStudying, ledger.StatusPending, ledger.StatusWaitingRenewal} {
			assert.False(t, ledger.CanTransition(terminal, to),
				"expected %s -> %s to be rejected", terminal, to)
		}
	}
}

func TestCanMutate_RejectsTerminal(t *testing.T) {
	e := enrollment("stu-1", "crs-1", "0")
	e.Status = ledger.StatusRefunded

	err := ledger.CanMutate(e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidStatusTransition))

	e.Status = ledger.StatusStudying
	assert.NoError(t, ledger.CanMutate(e))
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestValidateNonNegative(t *testing.T) {
	assert.NoError(t, ledger.ValidateNonNegative("hours", dec("0")))
	assert.NoError(t, ledger.ValidateNonNegative("hours", dec("1.5")))

	err := ledger.ValidateNonNegative("hours", dec("-0.5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ledger.ValidatePositive("hours", dec("0.5")))
	assert.True(t, errors.Is(ledger.ValidatePositive("hours", dec("0")), ledger.ErrInvalidAmount))
}

// =============================================================================
// DERIVED STATUS
// =============================================================================

func TestEffectiveStatus_ExpiryIsReadTime(t *testing.T) {
	// GIVEN: a studying enrollment whose validity has passed
	// THEN: the effective status reads expired while the stored status is
	//       untouched; terminal statuses never flip

	e := enrollment("stu-1", "crs-1", "5")
	e.ValidUntil = parseDate(t, "2026-01-31")

	assert.Equal(t, ledger.StatusStudying, e.EffectiveStatus(parseDate(t, "2026-01-01")))
	assert.Equal(t, ledger.StatusExpired, e.EffectiveStatus(parseDate(t, "2026-02-01")))
	assert.Equal(t, ledger.StatusStudying, e.Status)

	e.Status = ledger.StatusRefunded
	assert.Equal(t, ledger.StatusRefunded, e.EffectiveStatus(parseDate(t, "2026-02-01")))
}
