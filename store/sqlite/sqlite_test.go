package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/disbursement-engine/disbursement"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBeneficiary(t *testing.T, s *Store, id string, destinations ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveBeneficiary(ctx, Beneficiary{ID: id, Name: "Alice " + id, Email: id + "@example.com"}))
	for _, d := range destinations {
		require.NoError(t, s.AddDestination(ctx, Destination{ID: d, BeneficiaryID: id, Label: d}))
	}
}

func TestStore_Beneficiaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetBeneficiary(ctx, "emp-001")
	require.NoError(t, err)
	assert.Nil(t, got)

	seedBeneficiary(t, s, "emp-001")
	require.NoError(t, s.SaveBeneficiary(ctx, Beneficiary{ID: "emp-001", Name: "Alice Renamed"}))

	got, err = s.GetBeneficiary(ctx, "emp-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice Renamed", got.Name)

	all, err := s.ListBeneficiaries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_DestinationsKeepCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBeneficiary(t, s, "emp-001", "bank3", "bank1", "bank2")

	list, err := s.ListDestinations(ctx, "emp-001")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "bank3", list[0].ID)
	assert.Equal(t, "bank1", list[1].ID)
	assert.Equal(t, "bank2", list[2].ID)

	err = s.AddDestination(ctx, Destination{ID: "bank1", BeneficiaryID: "emp-001"})
	assert.ErrorIs(t, err, disbursement.ErrDuplicateDestination)

	err = s.AddDestination(ctx, Destination{ID: "bank1", BeneficiaryID: "nobody"})
	assert.ErrorIs(t, err, disbursement.ErrBeneficiaryNotFound)
}

func TestStore_ReplaceRulesAndLoadConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBeneficiary(t, s, "emp-001", "bank1", "bank2", "bank3")

	rules := []disbursement.AllocationRule{
		disbursement.Percentage("bank2", 2, disbursement.MustParseMoney("100")),
		disbursement.Fixed("bank1", 1, disbursement.MustParseMoney("1000.00")),
	}
	require.NoError(t, s.ReplaceRules(ctx, "emp-001", rules))

	cfg, err := s.LoadConfig(ctx, "emp-001")
	require.NoError(t, err)
	assert.Equal(t, []disbursement.DestinationID{"bank1", "bank2", "bank3"}, cfg.Destinations)
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, disbursement.DestinationID("bank1"), cfg.Rules[0].Destination)
	assert.Equal(t, disbursement.KindFixed, cfg.Rules[0].Kind)
	assert.Equal(t, "1000", cfg.Rules[0].Value.String())
	assert.Equal(t, disbursement.KindPercentage, cfg.Rules[1].Kind)

	// The loaded snapshot drives the allocator
	result, err := disbursement.Allocate(disbursement.MustParseMoney("5000.00"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "4000.00", result.Amount("bank2").StringFixed(2))

	// Replacing with nothing clears the configuration
	require.NoError(t, s.ReplaceRules(ctx, "emp-001", nil))
	cfg, err = s.LoadConfig(ctx, "emp-001")
	require.NoError(t, err)
	assert.Empty(t, cfg.Rules)
}

func TestStore_ReplaceRulesIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBeneficiary(t, s, "emp-001", "bank1")

	require.NoError(t, s.ReplaceRules(ctx, "emp-001", []disbursement.AllocationRule{
		disbursement.Percentage("bank1", 1, disbursement.MustParseMoney("100")),
	}))

	// GIVEN: A replacement that references an unknown destination
	err := s.ReplaceRules(ctx, "emp-001", []disbursement.AllocationRule{
		disbursement.Fixed("bank1", 1, disbursement.MustParseMoney("10")),
		disbursement.Percentage("bank9", 2, disbursement.MustParseMoney("100")),
	})

	// THEN: It fails and the previous rules survive
	assert.ErrorIs(t, err, disbursement.ErrUnknownDestination)
	rules, err := s.ListRules(ctx, "emp-001")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, disbursement.KindPercentage, rules[0].Kind)
}

func TestStore_LoadConfigUnknownBeneficiary(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadConfig(context.Background(), "nobody")
	assert.ErrorIs(t, err, disbursement.ErrBeneficiaryNotFound)
}

func TestStore_Disbursements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	result, err := disbursement.Allocate(disbursement.MustParseMoney("100.00"), disbursement.AllocationConfig{
		Destinations: []disbursement.DestinationID{"bank1", "bank2", "bank3"},
		Rules: []disbursement.AllocationRule{
			disbursement.Percentage("bank1", 1, disbursement.MustParseMoney("33.33")),
			disbursement.Percentage("bank2", 2, disbursement.MustParseMoney("33.33")),
			disbursement.Percentage("bank3", 3, disbursement.MustParseMoney("33.34")),
		},
	})
	require.NoError(t, err)

	d := disbursement.NewDisbursement("d1", "run-1", "emp-001", "slip-1", result)
	require.NoError(t, s.SaveDisbursement(ctx, d))

	// Same payslip again is rejected
	d.ID = "d2"
	assert.ErrorIs(t, s.SaveDisbursement(ctx, d), disbursement.ErrDuplicateDisbursement)

	list, err := s.ListDisbursements(ctx, "emp-001")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "run-1", list[0].RunID)
	assert.Equal(t, "slip-1", list[0].PayslipRef)
	assert.Equal(t, "100.00", list[0].NetAmount.StringFixed(2))
	require.Len(t, list[0].Lines, 3)
	assert.Equal(t, disbursement.DestinationID("bank3"), list[0].Lines[2].Destination)
	assert.Equal(t, "33.34", list[0].Lines[2].Amount.StringFixed(2))
	assert.Equal(t, disbursement.KindPercentage, list[0].Lines[2].Kind)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBeneficiary(t, s, "emp-001", "bank1")

	require.NoError(t, s.Reset(ctx))

	all, err := s.ListBeneficiaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
