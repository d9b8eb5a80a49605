package disbursement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShares(amounts ...string) []share {
	shares := make([]share, len(amounts))
	for i, a := range amounts {
		shares[i] = share{
			rule:   Percentage(DestinationID(rune('a'+i)), i+1, decimal.NewFromInt(1)),
			amount: MustParseMoney(a),
		}
	}
	return shares
}

func TestAbsorbResidual_PositiveDriftGoesToLast(t *testing.T) {
	shares := testShares("33.33", "33.33", "33.33")

	idx, err := absorbResidual(shares, MustParseMoney("0.01"))

	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "33.34", shares[2].amount.StringFixed(2))
	assert.Equal(t, "33.33", shares[0].amount.StringFixed(2))
}

func TestAbsorbResidual_NegativeDriftSubtracted(t *testing.T) {
	shares := testShares("0.02", "0.02")

	idx, err := absorbResidual(shares, MustParseMoney("-0.01"))

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "0.01", shares[1].amount.StringFixed(2))
}

func TestAbsorbResidual_NeverClamps(t *testing.T) {
	shares := testShares("0.01", "0.00")

	_, err := absorbResidual(shares, MustParseMoney("-0.01"))

	require.Error(t, err)
	assert.Equal(t, "0.00", shares[1].amount.StringFixed(2), "share must be left untouched")
}

func TestAbsorbResidual_NoShares(t *testing.T) {
	idx, err := absorbResidual(nil, decimal.Zero)
	assert.NoError(t, err)
	assert.Equal(t, -1, idx)

	_, err = absorbResidual(nil, MustParseMoney("0.01"))
	assert.Error(t, err)
}
