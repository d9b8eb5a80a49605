/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are rendered as strings with the allocator's precision ("1000.00")
  so no digit is lost to float64. Request amounts may be JSON strings or
  numbers; both are decoded as exact decimals.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/distribution.go: Stored distribution format
*/
package api

import (
	"time"

	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/factory"
	"github.com/warp/disbursement-engine/payroll"
	"github.com/warp/disbursement-engine/store/sqlite"
)

// =============================================================================
// BENEFICIARIES AND DESTINATIONS
// =============================================================================

// BeneficiaryDTO represents a beneficiary in API responses.
type BeneficiaryDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

// CreateBeneficiaryRequest is the request body for creating a beneficiary.
type CreateBeneficiaryRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DestinationDTO represents a payout destination.
type DestinationDTO struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	AccountRef string `json:"account_ref,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// CreateDestinationRequest is the request body for adding a destination.
type CreateDestinationRequest struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	AccountRef string `json:"account_ref"`
}

// =============================================================================
// ALLOCATION
// =============================================================================

// AllocateRequest asks for a split of one net amount using stored settings.
type AllocateRequest struct {
	NetAmount *factory.Amount `json:"net_amount"`
}

// StatelessAllocateRequest carries the whole configuration inline.
type StatelessAllocateRequest struct {
	NetAmount    *factory.Amount          `json:"net_amount"`
	Destinations []string                 `json:"destinations"`
	Rules        factory.DistributionJSON `json:"rules"`
}

// AllocationDTO is one destination's share.
type AllocationDTO struct {
	Destination string `json:"destination"`
	Kind        string `json:"kind"`
	Sequence    int    `json:"sequence,omitempty"`
	Amount      string `json:"amount"`
}

// AllocationResultDTO is the full split of a net amount.
type AllocationResultDTO struct {
	NetAmount   string          `json:"net_amount"`
	FixedTotal  string          `json:"fixed_total"`
	Remainder   string          `json:"remainder"`
	Residual    string          `json:"residual"`
	Absorber    string          `json:"absorber,omitempty"`
	Allocations []AllocationDTO `json:"allocations"`
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

// PayslipRequest is one payslip of a payroll run.
type PayslipRequest struct {
	ID            string          `json:"id"`
	BeneficiaryID string          `json:"beneficiary_id"`
	NetAmount     *factory.Amount `json:"net_amount"`
}

// PayrollRunRequest is the request body for a batch run.
type PayrollRunRequest struct {
	Payslips []PayslipRequest `json:"payslips"`
}

// PayslipOutcomeDTO reports one payslip of a run.
type PayslipOutcomeDTO struct {
	PayslipID      string          `json:"payslip_id"`
	BeneficiaryID  string          `json:"beneficiary_id"`
	Status         string          `json:"status"`
	DisbursementID string          `json:"disbursement_id,omitempty"`
	Allocations    []AllocationDTO `json:"allocations,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// PayrollRunDTO summarizes a batch run.
type PayrollRunDTO struct {
	RunID     string              `json:"run_id"`
	Succeeded int                 `json:"succeeded"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Total     string              `json:"total"`
	Outcomes  []PayslipOutcomeDTO `json:"outcomes"`
}

// DisbursementDTO is a recorded disbursement.
type DisbursementDTO struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	PayslipRef string          `json:"payslip_ref,omitempty"`
	NetAmount  string          `json:"net_amount"`
	CreatedAt  string          `json:"created_at"`
	Lines      []AllocationDTO `json:"lines"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	BeneficiaryID string `json:"beneficiary_id"`
	SampleNet     string `json:"sample_net"`
	Expect        string `json:"expect"`
}

// LoadScenarioRequest is the request body for loading a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse reports what a scenario load produced.
type LoadScenarioResponse struct {
	Loaded   []string                      `json:"loaded"`
	Previews map[string]ScenarioPreviewDTO `json:"previews"`
}

// ScenarioPreviewDTO is the allocation of a scenario's sample net amount.
type ScenarioPreviewDTO struct {
	Result *AllocationResultDTO `json:"result,omitempty"`
	Code   string               `json:"code,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toBeneficiaryDTO(b sqlite.Beneficiary) BeneficiaryDTO {
	return BeneficiaryDTO{
		ID:        b.ID,
		Name:      b.Name,
		Email:     b.Email,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

func toDestinationDTO(d sqlite.Destination) DestinationDTO {
	return DestinationDTO{
		ID:         d.ID,
		Label:      d.Label,
		AccountRef: d.AccountRef,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

func toAllocationDTOs(allocs []disbursement.Allocation, precision int32) []AllocationDTO {
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = AllocationDTO{
			Destination: string(a.Destination),
			Kind:        string(a.Kind),
			Sequence:    a.Sequence,
			Amount:      a.Amount.StringFixed(precision),
		}
	}
	return dtos
}

func toAllocationResultDTO(r disbursement.Result, precision int32) AllocationResultDTO {
	return AllocationResultDTO{
		NetAmount:   r.NetAmount.StringFixed(precision),
		FixedTotal:  r.FixedTotal.StringFixed(precision),
		Remainder:   r.Remainder.StringFixed(precision),
		Residual:    r.Residual.StringFixed(precision),
		Absorber:    string(r.Absorber),
		Allocations: toAllocationDTOs(r.Allocations, precision),
	}
}

func toDisbursementDTO(d disbursement.Disbursement, precision int32) DisbursementDTO {
	return DisbursementDTO{
		ID:         d.ID,
		RunID:      d.RunID,
		PayslipRef: d.PayslipRef,
		NetAmount:  d.NetAmount.StringFixed(precision),
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		Lines:      toAllocationDTOs(d.Lines, precision),
	}
}

func toPayrollRunDTO(report payroll.RunReport, precision int32) PayrollRunDTO {
	dto := PayrollRunDTO{
		RunID:     report.RunID,
		Succeeded: report.Succeeded,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
		Total:     report.Total.StringFixed(precision),
		Outcomes:  make([]PayslipOutcomeDTO, len(report.Outcomes)),
	}
	for i, o := range report.Outcomes {
		out := PayslipOutcomeDTO{
			PayslipID:      o.PayslipID,
			BeneficiaryID:  string(o.BeneficiaryID),
			Status:         string(o.Status),
			DisbursementID: o.DisbursementID,
		}
		if o.Result != nil {
			out.Allocations = toAllocationDTOs(o.Result.Allocations, precision)
		}
		if o.Err != nil {
			out.Code = disbursement.Code(o.Err)
			out.Error = o.Err.Error()
		}
		dto.Outcomes[i] = out
	}
	return dto
}
