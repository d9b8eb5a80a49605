/*
Package disbursement provides the payroll disbursement waterfall allocator.

PURPOSE:
  Splits a beneficiary's net pay across the payout destinations they own
  (bank accounts, wallets, ...). Fixed amounts are paid first, percentages
  share what is left, and the rounding drift of the percentage pass is
  absorbed by one deterministic destination so the split is exact to the
  last minor currency unit.

KEY CONCEPTS IN THIS FILE (types.go):
  - DestinationID: Opaque payout target identifier
  - AllocationRule: One instruction (fixed amount or percentage)
  - AllocationConfig: All rules of one beneficiary plus every known destination
  - Result: The computed split, one Allocation per known destination

DESIGN PRINCIPLES:
  1. Purity: Allocate holds no state and performs no I/O
  2. Precision: Money is decimal.Decimal, rounded at minor-unit precision
  3. Determinism: Same input, same cent-level output, same absorbing destination
  4. Totality: Either a complete, invariant-satisfying result or an error

USAGE:
  cfg := disbursement.AllocationConfig{
      Destinations: []disbursement.DestinationID{"bank1", "bank2"},
      Rules: []disbursement.AllocationRule{
          disbursement.Fixed("bank1", 1, disbursement.MustParseMoney("1000.00")),
          disbursement.Percentage("bank2", 2, disbursement.MustParseMoney("100")),
      },
  }
  result, err := disbursement.Allocate(disbursement.MustParseMoney("5000.00"), cfg)

SEE ALSO:
  - validate.go: Structural checks run before any arithmetic
  - allocator.go: The waterfall (fixed pass, percentage pass)
  - residual.go: Rounding drift absorption
  - errors.go: Error taxonomy
*/
package disbursement

import (
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of minor-unit digits used when none is configured.
const DefaultPrecision int32 = 2

var hundred = decimal.NewFromInt(100)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DestinationID string
type BeneficiaryID string

// =============================================================================
// RULES - Tagged variant of allocation instructions
// =============================================================================

// Kind tags how a destination takes part in the waterfall.
type Kind string

const (
	KindFixed      Kind = "fixed"      // Exact amount, paid before any percentage
	KindPercentage Kind = "percentage" // Share of the remainder after fixed amounts
	KindImplicit   Kind = "implicit"   // Known destination without a rule; always zero
)

// IsExplicit reports whether the kind comes from a configured rule.
func (k Kind) IsExplicit() bool { return k == KindFixed || k == KindPercentage }

// AllocationRule is one configured instruction for a destination.
//
// Value is a monetary amount for KindFixed and a percentage in [0, 100] for
// KindPercentage. Sequence orders percentage rules for residual placement;
// it never moves a rule across kinds.
type AllocationRule struct {
	Destination DestinationID
	Sequence    int
	Value       decimal.Decimal
	Kind        Kind
}

// Fixed builds a fixed-amount rule.
func Fixed(dest DestinationID, sequence int, amount decimal.Decimal) AllocationRule {
	return AllocationRule{Destination: dest, Sequence: sequence, Value: amount, Kind: KindFixed}
}

// Percentage builds a percentage-of-remainder rule.
func Percentage(dest DestinationID, sequence int, percent decimal.Decimal) AllocationRule {
	return AllocationRule{Destination: dest, Sequence: sequence, Value: percent, Kind: KindPercentage}
}

// AllocationConfig is the caller-owned snapshot of one beneficiary's
// distribution settings.
//
// Destinations lists every destination known to the beneficiary in a stable
// order (creation order in the stores). Rules may cover any subset of them.
type AllocationConfig struct {
	Destinations []DestinationID
	Rules        []AllocationRule
}

// RuleFor returns the explicit rule configured for dest, if any.
func (c AllocationConfig) RuleFor(dest DestinationID) (AllocationRule, bool) {
	for _, r := range c.Rules {
		if r.Destination == dest {
			return r, true
		}
	}
	return AllocationRule{}, false
}

// =============================================================================
// RESULT
// =============================================================================

// Allocation is the amount sent to one destination.
type Allocation struct {
	Destination DestinationID
	Kind        Kind
	Sequence    int
	Amount      decimal.Decimal
}

// Result is a complete split of a net amount. Allocations follow the order
// of AllocationConfig.Destinations and cover each of them exactly once.
type Result struct {
	NetAmount   decimal.Decimal
	FixedTotal  decimal.Decimal
	Remainder   decimal.Decimal // NetAmount minus FixedTotal
	Residual    decimal.Decimal // Rounding drift moved onto Absorber
	Absorber    DestinationID   // Empty when no percentage pass ran
	Allocations []Allocation
}

// Amount returns the allocation for dest, or zero if dest is unknown.
func (r Result) Amount(dest DestinationID) decimal.Decimal {
	for _, a := range r.Allocations {
		if a.Destination == dest {
			return a.Amount
		}
	}
	return decimal.Zero
}

// Map returns the allocations keyed by destination.
func (r Result) Map() map[DestinationID]decimal.Decimal {
	m := make(map[DestinationID]decimal.Decimal, len(r.Allocations))
	for _, a := range r.Allocations {
		m[a.Destination] = a.Amount
	}
	return m
}

// Total sums every allocation. Equals NetAmount for any Result returned by Allocate.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// ParseMoney parses a decimal string such as "1000.00".
func ParseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustParseMoney parses s or panics. Use for literals and tests.
func MustParseMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RoundMinor rounds v to precision minor-unit digits, half away from zero.
func RoundMinor(v decimal.Decimal, precision int32) decimal.Decimal {
	return v.Round(precision)
}

// fitsPrecision reports whether v has no digits finer than the minor unit.
func fitsPrecision(v decimal.Decimal, precision int32) bool {
	return v.Equal(v.Truncate(precision))
}
