// Package store provides in-memory ConfigStore and RunStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/disbursement-engine/disbursement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	configs       map[disbursement.BeneficiaryID]disbursement.AllocationConfig
	disbursements map[disbursement.BeneficiaryID][]disbursement.Disbursement
	idempotency   map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		configs:       make(map[disbursement.BeneficiaryID]disbursement.AllocationConfig),
		disbursements: make(map[disbursement.BeneficiaryID][]disbursement.Disbursement),
		idempotency:   make(map[string]bool),
	}
}

// SetConfig stores a copy of cfg for the beneficiary, replacing any previous one.
func (m *Memory) SetConfig(beneficiaryID disbursement.BeneficiaryID, cfg disbursement.AllocationConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[beneficiaryID] = copyConfig(cfg)
}

func (m *Memory) LoadConfig(_ context.Context, beneficiaryID disbursement.BeneficiaryID) (disbursement.AllocationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[beneficiaryID]
	if !ok {
		return disbursement.AllocationConfig{}, disbursement.ErrBeneficiaryNotFound
	}
	// Callers own the snapshot they get back.
	return copyConfig(cfg), nil
}

// SaveDisbursement appends d. Append-only.
func (m *Memory) SaveDisbursement(_ context.Context, d disbursement.Disbursement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotency[d.PayslipRef] {
		return disbursement.ErrDuplicateDisbursement
	}
	m.disbursements[d.BeneficiaryID] = append(m.disbursements[d.BeneficiaryID], d)
	m.idempotency[d.PayslipRef] = true
	return nil
}

func (m *Memory) ListDisbursements(_ context.Context, beneficiaryID disbursement.BeneficiaryID) ([]disbursement.Disbursement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]disbursement.Disbursement, len(m.disbursements[beneficiaryID]))
	copy(result, m.disbursements[beneficiaryID])
	return result, nil
}

func copyConfig(cfg disbursement.AllocationConfig) disbursement.AllocationConfig {
	return disbursement.AllocationConfig{
		Destinations: append([]disbursement.DestinationID(nil), cfg.Destinations...),
		Rules:        append([]disbursement.AllocationRule(nil), cfg.Rules...),
	}
}
