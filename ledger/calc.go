/*
calc.go - Refund and fee arithmetic

PURPOSE:
  Deterministic money math for the engine. Kept pure and tiny: the engine
  computes the net refund figure but never settles money, and it records
  transfer price differences supplied by the caller without computing them.

ROUNDING:
  Amounts are rounded to the currency minor unit (2 decimal places) and
  no further. decimal.Decimal keeps intermediate results exact.

SEE ALSO:
  - processor.go: Refund calls ActualRefund; transfers log CompensationFee
*/
package ledger

import "github.com/shopspring/decimal"

// minorUnit is the currency's smallest representable place (cents/fen).
const minorUnit = 2

// ActualRefund computes the net amount returned to the student:
//
//	max(0, refundAmount - handlingFee - otherDeduction)
//
// Never negative: when fees exceed the refund the student receives zero,
// the institution does not invoice the difference through this path.
func ActualRefund(refundAmount, handlingFee, otherDeduction decimal.Decimal) decimal.Decimal {
	net := refundAmount.Sub(handlingFee).Sub(otherDeduction)
	if net.IsNegative() {
		return decimal.Zero.Round(minorUnit)
	}
	return net.Round(minorUnit)
}

// RoundMoney normalizes a caller-supplied money figure to the minor unit.
// Used for recorded-but-not-settled figures like transfer price differences.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(minorUnit)
}
