/*
store.go - Persistence interfaces around the allocator

PURPOSE:
  The allocator itself never touches storage. These interfaces describe what
  the surrounding payroll code needs: reading a beneficiary's configuration
  snapshot, and recording the split that was actually paid out.

KEY INTERFACES:
  ConfigStore: Beneficiary distribution settings (read side)
  RunStore:    Disbursement records (append-only)

APPEND-ONLY CONTRACT:
  Disbursements are never updated or deleted. Each one carries the payslip
  reference as its idempotency key; saving the same payslip twice returns
  ErrDuplicateDisbursement.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - disbursement/store/memory.go: In-memory for testing

SEE ALSO:
  - payroll/runner.go: Batch runs using both interfaces
*/
package disbursement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG STORE
// =============================================================================

// ConfigStore loads configuration snapshots.
type ConfigStore interface {
	// LoadConfig returns the destinations (creation order) and rules of a
	// beneficiary. Returns ErrBeneficiaryNotFound for unknown beneficiaries.
	LoadConfig(ctx context.Context, beneficiaryID BeneficiaryID) (AllocationConfig, error)
}

// =============================================================================
// RUN STORE - Disbursement records
// =============================================================================

// Disbursement records one paid-out split.
type Disbursement struct {
	ID            string
	RunID         string
	BeneficiaryID BeneficiaryID
	PayslipRef    string // Idempotency key
	NetAmount     decimal.Decimal
	Lines         []Allocation
	CreatedAt     time.Time
}

// NewDisbursement builds a record from an allocation result.
func NewDisbursement(id, runID string, beneficiaryID BeneficiaryID, payslipRef string, result Result) Disbursement {
	lines := make([]Allocation, len(result.Allocations))
	copy(lines, result.Allocations)
	return Disbursement{
		ID:            id,
		RunID:         runID,
		BeneficiaryID: beneficiaryID,
		PayslipRef:    payslipRef,
		NetAmount:     result.NetAmount,
		Lines:         lines,
		CreatedAt:     time.Now().UTC(),
	}
}

// RunStore persists disbursements.
// IMPORTANT: append-only. No Update, no Delete.
type RunStore interface {
	// SaveDisbursement persists d and its lines atomically.
	SaveDisbursement(ctx context.Context, d Disbursement) error

	// ListDisbursements returns a beneficiary's disbursements, oldest first.
	ListDisbursements(ctx context.Context, beneficiaryID BeneficiaryID) ([]Disbursement, error)
}
