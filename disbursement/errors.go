/*
errors.go - Error taxonomy for configuration validation and allocation

PURPOSE:
  All error types in one place. Every error here is a deterministic function
  of the caller's input: retrying the same call fails the same way, so none
  of them is retryable. The caller is expected to show the error to a person
  who edits the beneficiary's distribution settings.

ERROR CATEGORIES:
  1. Configuration errors (Validator) - wrapped in *ConfigError
     ErrDuplicateDestination, ErrNegativeAmount, ErrPercentageOutOfRange,
     ErrUnknownDestination, ErrInvalidRuleKind, ErrInvalidPrecision
  2. Allocation errors (Allocator) - wrapped in *AllocationError
     ErrOverAllocation, ErrUnderAllocation
  3. Store errors
     ErrBeneficiaryNotFound, ErrDuplicateDisbursement

USAGE:
  if errors.Is(err, disbursement.ErrOverAllocation) {
      // fixed amounts exceed the net pay
  }

  var allocErr *disbursement.AllocationError
  if errors.As(err, &allocErr) {
      log.Printf("remainder left: %s", allocErr.Remainder)
  }
*/
package disbursement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateDestination is returned when a destination carries more than one rule.
	ErrDuplicateDestination = errors.New("duplicate destination")

	// ErrNegativeAmount is returned for a negative fixed amount, percentage or net amount.
	ErrNegativeAmount = errors.New("negative amount")

	// ErrPercentageOutOfRange is returned when a percentage exceeds 100.
	ErrPercentageOutOfRange = errors.New("percentage out of range")

	// ErrUnknownDestination is returned when a rule targets a destination the
	// beneficiary does not own.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrInvalidRuleKind is returned for a rule that is neither fixed nor percentage.
	ErrInvalidRuleKind = errors.New("invalid rule kind")

	// ErrInvalidPrecision is returned when an amount has digits below the minor unit.
	ErrInvalidPrecision = errors.New("amount finer than minor unit")

	// ErrOverAllocation is returned when the configuration hands out more than the net amount.
	ErrOverAllocation = errors.New("Fixed allocations surpass the net salary")

	// ErrUnderAllocation is returned when part of the net amount has nowhere to go.
	ErrUnderAllocation = errors.New("Total allocations are less than the net salary")

	// ErrBeneficiaryNotFound is returned by stores for an unknown beneficiary.
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")

	// ErrDuplicateDisbursement is returned when a payslip was already disbursed.
	ErrDuplicateDisbursement = errors.New("payslip already disbursed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError reports a structurally invalid configuration.
type ConfigError struct {
	Destination DestinationID
	Value       decimal.Decimal
	Err         error
}

func (e *ConfigError) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("invalid allocation config: %v (value %s)", e.Err, e.Value)
	}
	return fmt.Sprintf("invalid allocation config: %v for %q (value %s)", e.Err, e.Destination, e.Value)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AllocationError reports a configuration that cannot split the given net amount.
type AllocationError struct {
	NetAmount  decimal.Decimal
	FixedTotal decimal.Decimal
	Remainder  decimal.Decimal
	Detail     string
	Err        error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("%v (net %s, fixed %s, remainder %s)", e.Err, e.NetAmount, e.FixedTotal, e.Remainder)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *AllocationError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Code returns a stable machine-readable code for err, or "" when err is not
// part of the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateDestination):
		return "duplicate_destination"
	case errors.Is(err, ErrNegativeAmount):
		return "negative_amount"
	case errors.Is(err, ErrPercentageOutOfRange):
		return "percentage_out_of_range"
	case errors.Is(err, ErrUnknownDestination):
		return "unknown_destination"
	case errors.Is(err, ErrInvalidRuleKind):
		return "invalid_rule_kind"
	case errors.Is(err, ErrInvalidPrecision):
		return "invalid_precision"
	case errors.Is(err, ErrOverAllocation):
		return "over_allocation"
	case errors.Is(err, ErrUnderAllocation):
		return "under_allocation"
	case errors.Is(err, ErrBeneficiaryNotFound):
		return "beneficiary_not_found"
	case errors.Is(err, ErrDuplicateDisbursement):
		return "duplicate_disbursement"
	}
	return ""
}

// IsConfigError returns true if err was raised by validation.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsAllocationError returns true for over/under allocation.
func IsAllocationError(err error) bool {
	return errors.Is(err, ErrOverAllocation) || errors.Is(err, ErrUnderAllocation)
}

// IsClientError returns true if the error is due to the caller's data.
func IsClientError(err error) bool {
	return IsConfigError(err) || IsAllocationError(err) ||
		errors.Is(err, ErrDuplicateDisbursement)
}

// IsNotFound returns true if the error indicates a missing beneficiary.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBeneficiaryNotFound)
}

// IsRetryable always returns false for this package's errors: they are pure
// functions of the input.
func IsRetryable(err error) bool {
	return false
}
