package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// REFUND ARITHMETIC
// =============================================================================

func TestActualRefund_DeductsFees(t *testing.T) {
	// GIVEN: refund 500, handling fee 50, other deduction 20
	// THEN: the student receives 430

	got := ledger.ActualRefund(dec("500"), dec("50"), dec("20"))
	assert.True(t, dec("430").Equal(got), "expected 430, got %s", got)
}

func TestActualRefund_NeverNegative(t *testing.T) {
	// GIVEN: fees exceeding the refund amount
	// THEN: the result is clamped at zero, not negative

	got := ledger.ActualRefund(dec("30"), dec("50"), dec("0"))
	assert.True(t, got.IsZero(), "expected 0, got %s", got)
}

func TestActualRefund_ZeroFees(t *testing.T) {
	got := ledger.ActualRefund(dec("250"), dec("0"), dec("0"))
	assert.True(t, dec("250").Equal(got))
}

func TestActualRefund_RoundsToMinorUnit(t *testing.T) {
	// GIVEN: inputs producing a sub-cent result
	// THEN: the result is rounded to 2 decimal places

	got := ledger.ActualRefund(dec("100.005"), dec("0.001"), dec("0"))
	assert.True(t, dec("100.00").Equal(got), "expected 100.00, got %s", got)
}

func TestRoundMoney(t *testing.T) {
	assert.True(t, dec("12.35").Equal(ledger.RoundMoney(dec("12.345"))))
	assert.True(t, dec("-12.35").Equal(ledger.RoundMoney(dec("-12.345"))))
}
