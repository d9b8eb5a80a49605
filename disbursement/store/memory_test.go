package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/disbursement/store"
)

func TestMemory_LoadConfig(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.LoadConfig(ctx, "emp-001")
	assert.ErrorIs(t, err, disbursement.ErrBeneficiaryNotFound)

	cfg := disbursement.AllocationConfig{
		Destinations: []disbursement.DestinationID{"bank1", "bank2"},
		Rules: []disbursement.AllocationRule{
			disbursement.Percentage("bank1", 1, disbursement.MustParseMoney("100")),
		},
	}
	m.SetConfig("emp-001", cfg)

	got, err := m.LoadConfig(ctx, "emp-001")
	require.NoError(t, err)
	assert.Equal(t, cfg.Destinations, got.Destinations)
	require.Len(t, got.Rules, 1)

	// Mutating the snapshot must not leak back into the store
	got.Destinations[0] = "changed"
	again, err := m.LoadConfig(ctx, "emp-001")
	require.NoError(t, err)
	assert.Equal(t, disbursement.DestinationID("bank1"), again.Destinations[0])
}

func TestMemory_SaveDisbursementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	d := disbursement.Disbursement{ID: "d1", RunID: "r1", BeneficiaryID: "emp-001", PayslipRef: "slip-1"}
	require.NoError(t, m.SaveDisbursement(ctx, d))

	d.ID = "d2"
	assert.ErrorIs(t, m.SaveDisbursement(ctx, d), disbursement.ErrDuplicateDisbursement)

	list, err := m.ListDisbursements(ctx, "emp-001")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d1", list[0].ID)
}

func TestMemory_ListDisbursementsUnknown(t *testing.T) {
	list, err := store.NewMemory().ListDisbursements(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
