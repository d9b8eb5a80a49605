package disbursement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// share is one explicit percentage rule and its rounded amount.
type share struct {
	rule   AllocationRule
	amount decimal.Decimal
}

// absorbResidual adds the rounding drift of the percentage pass to the last
// share and returns its index. Shares are in ascending sequence order, so the
// same configuration always moves the same cents onto the same destination.
//
// A negative drift is subtracted the same way. If that would leave the
// absorbing share below zero the configuration is broken and an error is
// returned; the amount is never clamped.
func absorbResidual(shares []share, residual decimal.Decimal) (int, error) {
	if len(shares) == 0 {
		if residual.IsZero() {
			return -1, nil
		}
		return -1, fmt.Errorf("residual %s with no percentage rule to absorb it", residual)
	}

	last := len(shares) - 1
	adjusted := shares[last].amount.Add(residual)
	if adjusted.IsNegative() {
		return -1, fmt.Errorf("residual %s would drive %q to %s", residual, shares[last].rule.Destination, adjusted)
	}
	shares[last].amount = adjusted
	return last, nil
}
