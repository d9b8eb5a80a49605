/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built beneficiaries whose distribution settings exercise
	each branch of the waterfall: percentage-only, fixed then percentage,
	over-allocation, under-allocation and rounding residue.

AVAILABLE SCENARIOS:

	single-bank:      100% to one bank, second bank unconfigured
	fixed-then-rest:  Fixed amount first, remainder by percentage
	sixty-forty:      Two percentage destinations
	over-allocated:   Fixed amount larger than the salary
	under-allocated:  Fixed amounts that leave part of the salary unpaid
	thirds:           33.33/33.33/33.34, rounding residue to the last bank

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the beneficiary and its destinations
 3. Decode the stored distribution via the factory
 4. Save the rules
 5. Preview the allocation of the scenario's sample net amount

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "thirds"}      or {"scenario_id": "all"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Allocation handlers
  - factory/distribution.go: Stored distribution format
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	destinations []string
	distribution string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "single-bank",
			Name:          "Single Bank",
			Description:   "Everything to bank1; bank2 is known but unconfigured",
			BeneficiaryID: "emp-single-bank",
			SampleNet:     "1000.00",
			Expect:        "bank1 1000.00, bank2 0.00",
		},
		destinations: []string{"bank1", "bank2"},
		distribution: `{"bank1": {"sequence": 1, "amount": 100, "amount_is_percentage": true}}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "fixed-then-rest",
			Name:          "Fixed Then Rest",
			Description:   "1000.00 fixed to bank1, the remainder to bank2",
			BeneficiaryID: "emp-fixed-then-rest",
			SampleNet:     "5000.00",
			Expect:        "bank1 1000.00, bank2 4000.00",
		},
		destinations: []string{"bank1", "bank2"},
		distribution: `{
			"bank1": {"sequence": 1, "amount": "1000.00", "amount_is_percentage": false},
			"bank2": {"sequence": 2, "amount": 100, "amount_is_percentage": true}
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "sixty-forty",
			Name:          "Sixty Forty",
			Description:   "Two percentage destinations",
			BeneficiaryID: "emp-sixty-forty",
			SampleNet:     "1000.00",
			Expect:        "bank1 600.00, bank2 400.00",
		},
		destinations: []string{"bank1", "bank2"},
		distribution: `{
			"bank1": {"sequence": 1, "amount": 60, "amount_is_percentage": true},
			"bank2": {"sequence": 2, "amount": 40, "amount_is_percentage": true}
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "over-allocated",
			Name:          "Over Allocated",
			Description:   "A fixed amount larger than the net salary",
			BeneficiaryID: "emp-over-allocated",
			SampleNet:     "5000.00",
			Expect:        "over_allocation",
		},
		destinations: []string{"bank1"},
		distribution: `{"bank1": {"sequence": 1, "amount": "6000.00", "amount_is_percentage": false}}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "under-allocated",
			Name:          "Under Allocated",
			Description:   "Fixed amounts only, with salary left over",
			BeneficiaryID: "emp-under-allocated",
			SampleNet:     "5000.00",
			Expect:        "under_allocation",
		},
		destinations: []string{"bank1", "bank2"},
		distribution: `{
			"bank1": {"sequence": 1, "amount": "2000.00", "amount_is_percentage": false},
			"bank2": {"sequence": 1, "amount": "2000.00", "amount_is_percentage": false}
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "thirds",
			Name:          "Thirds",
			Description:   "33.33/33.33/33.34; the rounding residue lands in bank3",
			BeneficiaryID: "emp-thirds",
			SampleNet:     "1234.57",
			Expect:        "bank1 411.48, bank2 411.48, bank3 411.61",
		},
		destinations: []string{"bank1", "bank2", "bank3"},
		distribution: `{
			"bank1": {"sequence": 1, "amount": 33.33, "amount_is_percentage": true},
			"bank2": {"sequence": 2, "amount": 33.33, "amount_is_percentage": true},
			"bank3": {"sequence": 3, "amount": 33.34, "amount_is_percentage": true}
		}`,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario_id": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario_id": current})
}

// LoadScenario resets the database and loads one scenario, or all of them.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var selected []scenario
	if req.ScenarioID == "all" {
		selected = scenarios
	} else if s, ok := findScenario(req.ScenarioID); ok {
		selected = []scenario{s}
	} else {
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}

	resp, err := h.loadScenarios(r.Context(), selected)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario_id", req.ScenarioID)
	writeJSON(w, http.StatusOK, resp)
}

// SeedScenarios loads every scenario without an HTTP request. Used by the
// server's -seed flag.
func (h *Handler) SeedScenarios(ctx context.Context) error {
	if _, err := h.loadScenarios(ctx, scenarios); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = "all"
	h.mu.Unlock()
	return nil
}

func (h *Handler) loadScenarios(ctx context.Context, selected []scenario) (LoadScenarioResponse, error) {
	if err := h.Store.Reset(ctx); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("reset: %w", err)
	}

	resp := LoadScenarioResponse{Previews: make(map[string]ScenarioPreviewDTO, len(selected))}
	for _, s := range selected {
		cfg, err := h.loadScenario(ctx, s)
		if err != nil {
			return LoadScenarioResponse{}, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
		resp.Loaded = append(resp.Loaded, s.ID)
		resp.Previews[s.ID] = h.preview(s, cfg)
	}
	return resp, nil
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) (disbursement.AllocationConfig, error) {
	if err := h.Store.SaveBeneficiary(ctx, sqlite.Beneficiary{
		ID:    s.BeneficiaryID,
		Name:  s.Name,
		Email: s.BeneficiaryID + "@example.com",
	}); err != nil {
		return disbursement.AllocationConfig{}, err
	}

	destinations := make([]disbursement.DestinationID, len(s.destinations))
	for i, d := range s.destinations {
		if err := h.Store.AddDestination(ctx, sqlite.Destination{
			ID:            d,
			BeneficiaryID: s.BeneficiaryID,
			Label:         d,
		}); err != nil {
			return disbursement.AllocationConfig{}, err
		}
		destinations[i] = disbursement.DestinationID(d)
	}

	cfg, err := h.Factory.ParseConfig(s.distribution, destinations)
	if err != nil {
		return disbursement.AllocationConfig{}, err
	}
	if err := h.Store.ReplaceRules(ctx, s.BeneficiaryID, cfg.Rules); err != nil {
		return disbursement.AllocationConfig{}, err
	}
	return cfg, nil
}

func (h *Handler) preview(s scenario, cfg disbursement.AllocationConfig) ScenarioPreviewDTO {
	net, err := disbursement.ParseMoney(s.SampleNet)
	if err != nil {
		return ScenarioPreviewDTO{Error: err.Error()}
	}
	result, err := h.Allocator.Allocate(net, cfg)
	if err != nil {
		return ScenarioPreviewDTO{Code: disbursement.Code(err), Error: err.Error()}
	}
	dto := toAllocationResultDTO(result, h.precision())
	return ScenarioPreviewDTO{Result: &dto}
}
