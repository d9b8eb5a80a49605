/*
handlers_test.go - Tests for API handlers

Tests for:
- Beneficiary and destination management
- Distribution validation and storage
- Stored and stateless allocation, including error codes
- Payroll runs and disbursement history
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/store/sqlite"
)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, disbursement.NewAllocator(disbursement.DefaultPrecision), 2, nil)
	return h, NewRouter(h, DefaultRouterOptions())
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// setupBeneficiary creates emp-001 with bank1..bank3.
func setupBeneficiary(t *testing.T, srv http.Handler) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/beneficiaries", CreateBeneficiaryRequest{ID: "emp-001", Name: "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, d := range []string{"bank1", "bank2", "bank3"} {
		rec := do(t, srv, http.MethodPost, "/api/beneficiaries/emp-001/destinations", CreateDestinationRequest{ID: d})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestBeneficiaries_CreateGetList(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", decode[BeneficiaryDTO](t, rec).Name)

	rec = do(t, srv, http.MethodGet, "/api/beneficiaries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BeneficiaryDTO](t, rec), 1)

	rec = do(t, srv, http.MethodPost, "/api/beneficiaries", CreateBeneficiaryRequest{ID: "emp-001", Name: "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/beneficiaries", CreateBeneficiaryRequest{ID: "", Name: "Nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBeneficiaries_NotFound(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/beneficiaries/nobody", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "beneficiary_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestDestinations_OrderAndDuplicates(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001/destinations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dests := decode[[]DestinationDTO](t, rec)
	require.Len(t, dests, 3)
	assert.Equal(t, "bank1", dests[0].ID)
	assert.Equal(t, "bank3", dests[2].ID)

	rec = do(t, srv, http.MethodPost, "/api/beneficiaries/emp-001/destinations", CreateDestinationRequest{ID: "bank2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_destination", decode[ErrorResponse](t, rec).Code)
}

func TestDistribution_PutAndGet(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)

	// GIVEN: Fixed 1000 to bank1, the rest to bank2
	rec := do(t, srv, http.MethodPut, "/api/beneficiaries/emp-001/distribution", `{
		"bank1": {"sequence": 1, "amount": "1000.00", "amount_is_percentage": false},
		"bank2": {"sequence": 2, "amount": 100, "amount_is_percentage": true}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN
	rec = do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001/distribution", nil)

	// THEN: The stored format comes back
	require.Equal(t, http.StatusOK, rec.Code)
	var stored map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, true, stored["bank2"]["amount_is_percentage"])
	assert.Equal(t, "1000", stored["bank1"]["amount"])
}

func TestDistribution_InvalidIsRejected(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"out of range", `{"bank1": {"sequence": 1, "amount": 150, "amount_is_percentage": true}}`, http.StatusUnprocessableEntity, "percentage_out_of_range"},
		{"negative", `{"bank1": {"sequence": 1, "amount": "-5", "amount_is_percentage": false}}`, http.StatusUnprocessableEntity, "negative_amount"},
		{"unknown destination", `{"bank9": {"sequence": 1, "amount": 100, "amount_is_percentage": true}}`, http.StatusUnprocessableEntity, "unknown_destination"},
		{"finer than a cent", `{"bank1": {"sequence": 1, "amount": "10.005", "amount_is_percentage": false}, "bank2": {"sequence": 2, "amount": 100, "amount_is_percentage": true}}`, http.StatusUnprocessableEntity, "invalid_precision"},
		{"malformed", `{"bank1": [`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, "/api/beneficiaries/emp-001/distribution", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}

	// Nothing was stored
	rec := do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001/distribution", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Empty(t, stored)
}

func TestAllocate_StoredConfig(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)
	rec := do(t, srv, http.MethodPut, "/api/beneficiaries/emp-001/distribution", `{
		"bank1": {"sequence": 1, "amount": "1000.00", "amount_is_percentage": false},
		"bank2": {"sequence": 2, "amount": 100, "amount_is_percentage": true}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/beneficiaries/emp-001/allocate", `{"net_amount": "5000.00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[AllocationResultDTO](t, rec)
	assert.Equal(t, "5000.00", result.NetAmount)
	assert.Equal(t, "1000.00", result.FixedTotal)
	require.Len(t, result.Allocations, 3)
	assert.Equal(t, AllocationDTO{Destination: "bank1", Kind: "fixed", Sequence: 1, Amount: "1000.00"}, result.Allocations[0])
	assert.Equal(t, "4000.00", result.Allocations[1].Amount)
	assert.Equal(t, AllocationDTO{Destination: "bank3", Kind: "implicit", Amount: "0.00"}, result.Allocations[2])

	// Over allocation surfaces as 422 with its code
	rec = do(t, srv, http.MethodPost, "/api/beneficiaries/emp-001/allocate", `{"net_amount": 500}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "over_allocation", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/api/beneficiaries/emp-001/allocate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocateStateless(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/allocate", `{
		"net_amount": "100.00",
		"destinations": ["bank1", "bank2", "bank3"],
		"rules": {
			"bank1": {"sequence": 1, "amount": 33.33, "amount_is_percentage": true},
			"bank2": {"sequence": 2, "amount": 33.33, "amount_is_percentage": true},
			"bank3": {"sequence": 3, "amount": 33.34, "amount_is_percentage": true}
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[AllocationResultDTO](t, rec)
	assert.Equal(t, "33.33", result.Allocations[0].Amount)
	assert.Equal(t, "33.34", result.Allocations[2].Amount)

	rec = do(t, srv, http.MethodPost, "/api/allocate", `{
		"net_amount": "5000.00",
		"destinations": ["bank1", "bank2"],
		"rules": {
			"bank1": {"sequence": 1, "amount": "2000.00", "amount_is_percentage": false},
			"bank2": {"sequence": 1, "amount": "2000.00", "amount_is_percentage": false}
		}
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "under_allocation", decode[ErrorResponse](t, rec).Code)
}

func TestPayrollRun_AndHistory(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)
	rec := do(t, srv, http.MethodPut, "/api/beneficiaries/emp-001/distribution",
		`{"bank1": {"sequence": 1, "amount": 100, "amount_is_percentage": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := `{"payslips": [
		{"id": "slip-1", "beneficiary_id": "emp-001", "net_amount": "1000.00"},
		{"id": "slip-2", "beneficiary_id": "emp-404", "net_amount": "1000.00"}
	]}`

	// WHEN: The run is submitted
	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", body)

	// THEN: One paid, one failed with its code
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[PayrollRunDTO](t, rec)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, "1000.00", run.Total)
	assert.Equal(t, "paid", run.Outcomes[0].Status)
	assert.Equal(t, "beneficiary_not_found", run.Outcomes[1].Code)

	// Resubmitting skips the paid payslip
	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[PayrollRunDTO](t, rec).Skipped)

	rec = do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001/disbursements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]DisbursementDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "slip-1", history[0].PayslipRef)
	assert.Equal(t, run.RunID, history[0].RunID)
	require.Len(t, history[0].Lines, 3)
	assert.Equal(t, "1000.00", history[0].Lines[0].Amount)
}

func TestPayrollRun_BadInput(t *testing.T) {
	_, srv := newTestServer(t)
	setupBeneficiary(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/payroll/runs", `{"payslips": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", `{"payslips": [{"id": "a", "beneficiary_id": "emp-001"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", `{"payslips": [
		{"id": "a", "beneficiary_id": "emp-001", "net_amount": 1},
		{"id": "a", "beneficiary_id": "emp-001", "net_amount": 1}
	]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A payslip without an id cannot be disbursed idempotently
	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", `{"payslips": [{"beneficiary_id": "emp-001", "net_amount": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/payroll/runs", `{"payslips": [{"id": "  ", "beneficiary_id": "emp-001", "net_amount": 1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/beneficiaries/emp-001/disbursements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]DisbursementDTO](t, rec))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(disbursement.ErrBeneficiaryNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(disbursement.ErrDuplicateDisbursement))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(disbursement.ErrOverAllocation))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestMetricsAndHealth(t *testing.T) {
	_, srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	do(t, srv, http.MethodPost, "/api/allocate", `{"net_amount": "1.00", "rules": {"a": {"sequence": 1, "amount": 100, "amount_is_percentage": true}}}`)
	rec = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disbursement_allocator_allocations_total")
	assert.Contains(t, rec.Body.String(), "disbursement_http_requests_total")
}
