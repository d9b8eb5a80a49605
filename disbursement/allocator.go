/*
allocator.go - Waterfall allocation of a net amount across destinations

PURPOSE:
  Computes how much of a beneficiary's net pay goes to each destination.

THE WATERFALL:
  1. Partition  - fixed rules, explicit percentage rules (ascending sequence,
                  ties in destination order), then implicit zero destinations
  2. Fixed pass - every fixed rule is paid in full; if they add up to more
                  than the net amount the call fails with ErrOverAllocation
  3. Percentage - the remainder is shared by percentage, each share rounded
                  to the minor unit on its own
  4. Residual   - the drift between the remainder and the rounded shares goes
                  to the last explicit percentage rule (see residual.go)
  5. Merge      - one Allocation per known destination, in destination order

PARTIAL PERCENTAGES:
  When a remainder exists, explicit percentages must add up to exactly 100.
  Less leaves money unassigned (ErrUnderAllocation), more hands out money
  that is not there (ErrOverAllocation). With a zero remainder percentages
  are never consulted.

EXAMPLE:
  net 5000.00, bank1 fixed 1000.00, bank2 100%
  fixed pass:  bank1 = 1000.00, remainder = 4000.00
  percentage:  bank2 = 4000.00
  residual:    0.00

SEE ALSO:
  - validate.go: Structural checks run first
  - residual.go: Drift absorption
*/
package disbursement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Allocator splits net amounts at a fixed minor-unit precision.
// The zero value uses DefaultPrecision. It holds no mutable state and is
// safe for concurrent use.
type Allocator struct {
	precision int32
	explicit  bool
}

// NewAllocator returns an allocator for the given number of minor-unit
// digits (2 for cents, 0 for currencies without minor units).
func NewAllocator(precision int32) Allocator {
	if precision < 0 {
		precision = 0
	}
	return Allocator{precision: precision, explicit: true}
}

// Allocate splits net using the default precision.
func Allocate(net decimal.Decimal, cfg AllocationConfig) (Result, error) {
	return Allocator{}.Allocate(net, cfg)
}

// Precision returns the number of minor-unit digits amounts are rounded to.
func (a Allocator) Precision() int32 {
	if !a.explicit {
		return DefaultPrecision
	}
	return a.precision
}

// =============================================================================
// ALLOCATE
// =============================================================================

// Allocate returns the exact split of net across every destination in cfg.
//
// INVARIANTS (for a nil error):
//   - Result.Total() equals net exactly
//   - every allocation is >= 0
//   - every destination in cfg.Destinations appears exactly once
func (a Allocator) Allocate(net decimal.Decimal, cfg AllocationConfig) (Result, error) {
	prec := a.Precision()

	if err := a.CheckConfig(cfg); err != nil {
		return Result{}, err
	}
	if err := checkNet(net, prec); err != nil {
		return Result{}, err
	}

	fixed, percents, implicit := partition(cfg)

	// Fixed pass
	fixedTotal := decimal.Zero
	for _, r := range fixed {
		fixedTotal = fixedTotal.Add(r.Value)
	}
	if fixedTotal.GreaterThan(net) {
		return Result{}, &AllocationError{
			NetAmount:  net,
			FixedTotal: fixedTotal,
			Remainder:  net.Sub(fixedTotal),
			Err:        ErrOverAllocation,
		}
	}
	remainder := net.Sub(fixedTotal)

	result := Result{
		NetAmount:  net,
		FixedTotal: fixedTotal,
		Remainder:  remainder,
		Residual:   decimal.Zero,
	}

	// Percentage pass
	shares := make([]share, len(percents))
	for i, r := range percents {
		shares[i] = share{rule: r, amount: decimal.Zero}
	}

	if !remainder.IsZero() {
		if len(percents) == 0 {
			return Result{}, &AllocationError{
				NetAmount:  net,
				FixedTotal: fixedTotal,
				Remainder:  remainder,
				Detail:     "no percentage rule to absorb the remainder",
				Err:        ErrUnderAllocation,
			}
		}

		percentTotal := decimal.Zero
		for _, r := range percents {
			percentTotal = percentTotal.Add(r.Value)
		}
		switch percentTotal.Cmp(hundred) {
		case -1:
			return Result{}, &AllocationError{
				NetAmount:  net,
				FixedTotal: fixedTotal,
				Remainder:  remainder,
				Detail:     fmt.Sprintf("percentages add up to %s%%", percentTotal),
				Err:        ErrUnderAllocation,
			}
		case 1:
			return Result{}, &AllocationError{
				NetAmount:  net,
				FixedTotal: fixedTotal,
				Remainder:  remainder,
				Detail:     fmt.Sprintf("percentages add up to %s%%", percentTotal),
				Err:        ErrOverAllocation,
			}
		}

		provisional := decimal.Zero
		for i := range shares {
			shares[i].amount = RoundMinor(remainder.Mul(shares[i].rule.Value).Div(hundred), prec)
			provisional = provisional.Add(shares[i].amount)
		}

		residual := remainder.Sub(provisional)
		absorber, err := absorbResidual(shares, residual)
		if err != nil {
			return Result{}, &AllocationError{
				NetAmount:  net,
				FixedTotal: fixedTotal,
				Remainder:  remainder,
				Detail:     err.Error(),
				Err:        ErrOverAllocation,
			}
		}
		result.Residual = residual
		result.Absorber = shares[absorber].rule.Destination
	}

	// Merge
	byDest := make(map[DestinationID]Allocation, len(cfg.Destinations))
	for _, r := range fixed {
		byDest[r.Destination] = Allocation{Destination: r.Destination, Kind: KindFixed, Sequence: r.Sequence, Amount: r.Value}
	}
	for _, s := range shares {
		byDest[s.rule.Destination] = Allocation{Destination: s.rule.Destination, Kind: KindPercentage, Sequence: s.rule.Sequence, Amount: s.amount}
	}
	for _, d := range implicit {
		byDest[d] = Allocation{Destination: d, Kind: KindImplicit, Amount: decimal.Zero}
	}

	result.Allocations = make([]Allocation, 0, len(cfg.Destinations))
	for _, d := range cfg.Destinations {
		result.Allocations = append(result.Allocations, byDest[d])
	}
	return result, nil
}

// CheckConfig validates cfg and rejects fixed amounts finer than the
// allocator's minor unit. A config that passes can be allocated for any
// non-negative net at this precision without a ConfigError.
func (a Allocator) CheckConfig(cfg AllocationConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	prec := a.Precision()
	for _, r := range cfg.Rules {
		if r.Kind == KindFixed && !fitsPrecision(r.Value, prec) {
			return &ConfigError{Destination: r.Destination, Value: r.Value, Err: ErrInvalidPrecision}
		}
	}
	return nil
}

// checkNet rejects a negative net amount and one finer than the minor unit.
func checkNet(net decimal.Decimal, prec int32) error {
	if net.IsNegative() {
		return &ConfigError{Value: net, Err: ErrNegativeAmount}
	}
	if !fitsPrecision(net, prec) {
		return &ConfigError{Value: net, Err: ErrInvalidPrecision}
	}
	return nil
}

// partition splits cfg into fixed rules (destination order), explicit
// percentage rules (ascending sequence, ties in destination order) and
// destinations without any rule.
func partition(cfg AllocationConfig) (fixed, percents []AllocationRule, implicit []DestinationID) {
	for _, d := range cfg.Destinations {
		r, ok := cfg.RuleFor(d)
		switch {
		case !ok:
			implicit = append(implicit, d)
		case r.Kind == KindFixed:
			fixed = append(fixed, r)
		default:
			percents = append(percents, r)
		}
	}
	sort.SliceStable(percents, func(i, j int) bool {
		return percents[i].Sequence < percents[j].Sequence
	})
	return fixed, percents, implicit
}
