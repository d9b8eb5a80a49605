package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/disbursement-engine/disbursement"
)

func TestAllocations_RecordAllocation(t *testing.T) {
	m := Allocations()
	require.Same(t, m, Allocations())

	okBefore := testutil.ToFloat64(m.allocations.WithLabelValues("ok"))
	underBefore := testutil.ToFloat64(m.errors.WithLabelValues("under_allocation"))

	result, err := disbursement.Allocate(disbursement.MustParseMoney("10.00"), disbursement.AllocationConfig{
		Destinations: []disbursement.DestinationID{"bank1"},
		Rules: []disbursement.AllocationRule{
			disbursement.Percentage("bank1", 1, disbursement.MustParseMoney("100")),
		},
	})
	require.NoError(t, err)
	m.RecordAllocation(result, disbursement.DefaultPrecision, nil)

	_, err = disbursement.Allocate(disbursement.MustParseMoney("10.00"), disbursement.AllocationConfig{
		Destinations: []disbursement.DestinationID{"bank1"},
	})
	require.Error(t, err)
	m.RecordAllocation(disbursement.Result{}, disbursement.DefaultPrecision, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocations.WithLabelValues("ok"))-okBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("under_allocation"))-underBefore)
}

func TestAllocations_RunAndPayslips(t *testing.T) {
	m := Allocations()
	before := testutil.ToFloat64(m.runPayslips.WithLabelValues("failed"))

	m.RecordPayslip("failed")
	m.ObserveRun(25 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runPayslips.WithLabelValues("failed"))-before)
}

func TestHTTP_Observe(t *testing.T) {
	m := HTTP()
	before := testutil.ToFloat64(m.requests.WithLabelValues("/api/allocate", "POST", "200"))

	m.Observe("/api/allocate", "POST", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/allocate", "POST", "200"))-before)
}

func TestNilReceiversAreSafe(t *testing.T) {
	var a *AllocationMetrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		a.RecordAllocation(disbursement.Result{}, 2, nil)
		a.ObserveRun(time.Second)
		a.RecordPayslip("paid")
		h.Observe("/", "GET", 200, time.Second)
		h.RecordThrottle()
	})
}
