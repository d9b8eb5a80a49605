/*
handlers.go - HTTP API handlers for the disbursement engine

PURPOSE:
  Exposes beneficiary configuration, allocation and payroll runs via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  the allocator, the factory and the payroll runner.

ENDPOINTS:
  Beneficiaries:
    GET    /api/beneficiaries                     List beneficiaries
    POST   /api/beneficiaries                     Create beneficiary
    GET    /api/beneficiaries/{id}                Get beneficiary
    GET    /api/beneficiaries/{id}/destinations   List destinations (creation order)
    POST   /api/beneficiaries/{id}/destinations   Add destination

  Distribution:
    GET    /api/beneficiaries/{id}/distribution   Stored rules
    PUT    /api/beneficiaries/{id}/distribution   Replace rules (validated)

  Allocation:
    POST   /api/beneficiaries/{id}/allocate       Split a net amount with stored rules
    POST   /api/allocate                          Split with an inline configuration

  Payroll:
    POST   /api/payroll/runs                      Disburse a batch of payslips
    GET    /api/beneficiaries/{id}/disbursements  Disbursement history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input
  - 404: Unknown beneficiary
  - 409: Conflict (duplicate beneficiary, destination or disbursement)
  - 422: Configuration or allocation errors; "code" carries the error kind
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/factory"
	"github.com/warp/disbursement-engine/logging"
	"github.com/warp/disbursement-engine/observability"
	"github.com/warp/disbursement-engine/payroll"
	"github.com/warp/disbursement-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Factory   *factory.ConfigFactory
	Allocator disbursement.Allocator
	Runner    *payroll.Runner
	Logger    *slog.Logger
	Metrics   *observability.AllocationMetrics

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler backed by store. A nil logger discards output.
func NewHandler(store *sqlite.Store, allocator disbursement.Allocator, workers int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := observability.Allocations()

	runner := payroll.NewRunner(store, store)
	runner.Allocator = allocator
	runner.Workers = workers
	runner.Logger = logger.With("system", "payroll")
	runner.Metrics = metrics

	return &Handler{
		Store:     store,
		Factory:   factory.NewConfigFactory(),
		Allocator: allocator,
		Runner:    runner,
		Logger:    logger,
		Metrics:   metrics,
	}
}

func (h *Handler) precision() int32 {
	return h.Allocator.Precision()
}

// =============================================================================
// BENEFICIARY HANDLERS
// =============================================================================

// ListBeneficiaries returns all beneficiaries.
func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	beneficiaries, err := h.Store.ListBeneficiaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list beneficiaries", err)
		return
	}

	dtos := make([]BeneficiaryDTO, len(beneficiaries))
	for i, b := range beneficiaries {
		dtos[i] = toBeneficiaryDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBeneficiary returns a single beneficiary.
func (h *Handler) GetBeneficiary(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBeneficiaryDTO(*b))
}

// CreateBeneficiary creates a new beneficiary.
func (h *Handler) CreateBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req CreateBeneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	existing, err := h.Store.GetBeneficiary(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check beneficiary", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Beneficiary already exists", nil)
		return
	}

	b := sqlite.Beneficiary{ID: req.ID, Name: req.Name, Email: req.Email}
	if err := h.Store.SaveBeneficiary(r.Context(), b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create beneficiary", err)
		return
	}

	created, err := h.Store.GetBeneficiary(r.Context(), req.ID)
	if err != nil || created == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load beneficiary", err)
		return
	}
	h.Logger.Info("beneficiary created", "beneficiary_id", req.ID)
	writeJSON(w, http.StatusCreated, toBeneficiaryDTO(*created))
}

// =============================================================================
// DESTINATION HANDLERS
// =============================================================================

// ListDestinations returns a beneficiary's destinations in creation order.
func (h *Handler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	destinations, err := h.Store.ListDestinations(r.Context(), b.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list destinations", err)
		return
	}

	dtos := make([]DestinationDTO, len(destinations))
	for i, d := range destinations {
		dtos[i] = toDestinationDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddDestination registers a new payout destination.
func (h *Handler) AddDestination(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	var req CreateDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	d := sqlite.Destination{ID: req.ID, BeneficiaryID: b.ID, Label: req.Label, AccountRef: req.AccountRef}
	if err := h.Store.AddDestination(r.Context(), d); err != nil {
		if errors.Is(err, disbursement.ErrDuplicateDestination) {
			writeDomainError(w, http.StatusConflict, "Destination already exists", err)
			return
		}
		writeDomainErrorAuto(w, "Failed to add destination", err)
		return
	}

	h.Logger.Info("destination added", "beneficiary_id", b.ID, "destination", req.ID)
	writeJSON(w, http.StatusCreated, DestinationDTO{
		ID:         d.ID,
		Label:      d.Label,
		AccountRef: d.AccountRef,
	})
}

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// GetDistribution returns the stored rules in the stored JSON format.
func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	cfg, err := h.Store.LoadConfig(r.Context(), disbursement.BeneficiaryID(b.ID))
	if err != nil {
		writeDomainErrorAuto(w, "Failed to load distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(cfg))
}

// PutDistribution validates and replaces a beneficiary's rules.
func (h *Handler) PutDistribution(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	var dj factory.DistributionJSON
	if err := json.NewDecoder(r.Body).Decode(&dj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid distribution", err)
		return
	}

	current, err := h.Store.LoadConfig(r.Context(), disbursement.BeneficiaryID(b.ID))
	if err != nil {
		writeDomainErrorAuto(w, "Failed to load destinations", err)
		return
	}

	cfg, err := h.Factory.FromJSON(dj, current.Destinations)
	if err != nil {
		writeDomainErrorAuto(w, "Invalid distribution", err)
		return
	}
	if err := h.Allocator.CheckConfig(cfg); err != nil {
		writeDomainErrorAuto(w, "Invalid distribution", err)
		return
	}

	if err := h.Store.ReplaceRules(r.Context(), b.ID, cfg.Rules); err != nil {
		writeDomainErrorAuto(w, "Failed to save distribution", err)
		return
	}

	h.Logger.Info("distribution replaced", "beneficiary_id", b.ID, "rules", len(cfg.Rules))
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(cfg))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// Allocate splits a net amount using the beneficiary's stored configuration.
// Nothing is persisted; use payroll runs to record disbursements.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.NetAmount == nil {
		writeError(w, http.StatusBadRequest, "net_amount is required", nil)
		return
	}

	cfg, err := h.Store.LoadConfig(r.Context(), disbursement.BeneficiaryID(b.ID))
	if err != nil {
		writeDomainErrorAuto(w, "Failed to load distribution", err)
		return
	}

	h.allocate(w, req.NetAmount.Decimal, cfg, "beneficiary_id", b.ID)
}

// AllocateStateless splits a net amount with a configuration sent inline.
func (h *Handler) AllocateStateless(w http.ResponseWriter, r *http.Request) {
	var req StatelessAllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.NetAmount == nil {
		writeError(w, http.StatusBadRequest, "net_amount is required", nil)
		return
	}

	var destinations []disbursement.DestinationID
	if req.Destinations != nil {
		destinations = make([]disbursement.DestinationID, len(req.Destinations))
		for i, d := range req.Destinations {
			destinations[i] = disbursement.DestinationID(strings.TrimSpace(d))
		}
	}

	cfg, err := h.Factory.FromJSON(req.Rules, destinations)
	if err != nil {
		writeDomainErrorAuto(w, "Invalid configuration", err)
		return
	}

	h.allocate(w, req.NetAmount.Decimal, cfg)
}

func (h *Handler) allocate(w http.ResponseWriter, net decimal.Decimal, cfg disbursement.AllocationConfig, logAttrs ...any) {
	result, err := h.Allocator.Allocate(net, cfg)
	h.Metrics.RecordAllocation(result, h.precision(), err)
	if err != nil {
		h.Logger.Info("allocation rejected", append(logAttrs, "code", disbursement.Code(err), "error", err)...)
		writeDomainErrorAuto(w, "Allocation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResultDTO(result, h.precision()))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// RunPayroll disburses a batch of payslips and returns per-payslip outcomes.
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Payslips) == 0 {
		writeError(w, http.StatusBadRequest, "payslips are required", nil)
		return
	}

	payslips := make([]payroll.Payslip, len(req.Payslips))
	seen := make(map[string]bool, len(req.Payslips))
	for i, p := range req.Payslips {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.BeneficiaryID) == "" || p.NetAmount == nil {
			writeError(w, http.StatusBadRequest, "each payslip needs id, beneficiary_id and net_amount", nil)
			return
		}
		if seen[p.ID] {
			writeError(w, http.StatusBadRequest, "duplicate payslip id "+p.ID, nil)
			return
		}
		seen[p.ID] = true
		payslips[i] = payroll.Payslip{
			ID:            p.ID,
			BeneficiaryID: disbursement.BeneficiaryID(p.BeneficiaryID),
			NetAmount:     p.NetAmount.Decimal,
		}
	}

	report, err := h.Runner.Run(r.Context(), payslips)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Payroll run interrupted", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollRunDTO(report, h.precision()))
}

// ListDisbursements returns a beneficiary's disbursement history.
func (h *Handler) ListDisbursements(w http.ResponseWriter, r *http.Request) {
	b, ok := h.requireBeneficiary(w, r)
	if !ok {
		return
	}

	list, err := h.Store.ListDisbursements(r.Context(), disbursement.BeneficiaryID(b.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list disbursements", err)
		return
	}

	dtos := make([]DisbursementDTO, len(list))
	for i, d := range list {
		dtos[i] = toDisbursementDTO(d, h.precision())
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data. Development only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	h.Logger.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// requireBeneficiary loads {id} and writes a 404 when it does not exist.
func (h *Handler) requireBeneficiary(w http.ResponseWriter, r *http.Request) (*sqlite.Beneficiary, bool) {
	id := chi.URLParam(r, "id")
	b, err := h.Store.GetBeneficiary(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get beneficiary", err)
		return nil, false
	}
	if b == nil {
		writeDomainError(w, http.StatusNotFound, "Beneficiary not found", disbursement.ErrBeneficiaryNotFound)
		return nil, false
	}
	return b, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError is writeError plus the machine-readable error kind.
func writeDomainError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: disbursement.Code(err)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainErrorAuto picks the status from the error taxonomy.
func writeDomainErrorAuto(w http.ResponseWriter, message string, err error) {
	writeDomainError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case disbursement.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, disbursement.ErrDuplicateDisbursement):
		return http.StatusConflict
	case errors.Is(err, factory.ErrInvalidConfig):
		return http.StatusBadRequest
	case disbursement.IsClientError(err), disbursement.Code(err) != "":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
