/*
Package payroll runs batches of payslips through the allocator.

PURPOSE:
  A payroll run takes the net salary of many payslips, splits each one across
  the beneficiary's destinations and records the result as a disbursement.
  Payslips are independent: one failing never stops the others.

FLOW (per payslip):
  1. Load the beneficiary's configuration snapshot (ConfigStore)
  2. Allocate the net amount (disbursement.Allocator)
  3. Persist a Disbursement keyed by the payslip id (RunStore)

IDEMPOTENCY:
  The payslip id is the disbursement's idempotency key. Re-running a batch
  marks already-paid payslips as skipped instead of paying them twice.

CONCURRENCY:
  Payslips are processed by at most Workers goroutines. Outcomes are reported
  in input order regardless of completion order. Cancelling the context stops
  new payslips from being scheduled; those are reported as cancelled.

SEE ALSO:
  - disbursement/allocator.go: The waterfall itself
  - disbursement/store.go: Storage interfaces
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/disbursement-engine/disbursement"
	"github.com/warp/disbursement-engine/logging"
	"github.com/warp/disbursement-engine/observability"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when Runner.Workers is not positive.
const DefaultWorkers = 4

// ErrMissingPayslipID is reported for a payslip without an ID. The ID is the
// idempotency key, so such a payslip is never disbursed.
var ErrMissingPayslipID = errors.New("payslip id is required")

// Status is the outcome of one payslip.
type Status string

const (
	StatusPaid      Status = "paid"
	StatusSkipped   Status = "skipped" // already disbursed
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Payslip is one net salary to disburse.
type Payslip struct {
	ID            string
	BeneficiaryID disbursement.BeneficiaryID
	NetAmount     decimal.Decimal
}

// Outcome reports what happened to one payslip.
type Outcome struct {
	PayslipID      string
	BeneficiaryID  disbursement.BeneficiaryID
	Status         Status
	DisbursementID string
	Result         *disbursement.Result
	Err            error
}

// RunReport summarizes a batch run.
type RunReport struct {
	RunID     string
	Succeeded int
	Skipped   int
	Failed    int
	Total     decimal.Decimal // net amount disbursed by this run
	Outcomes  []Outcome       // input order
	StartedAt time.Time
	Elapsed   time.Duration
}

// Runner processes payroll runs.
type Runner struct {
	Configs   disbursement.ConfigStore
	Runs      disbursement.RunStore
	Allocator disbursement.Allocator
	Workers   int
	Logger    *slog.Logger
	Metrics   *observability.AllocationMetrics
}

// NewRunner creates a runner with default workers and a discarding logger.
func NewRunner(configs disbursement.ConfigStore, runs disbursement.RunStore) *Runner {
	return &Runner{
		Configs: configs,
		Runs:    runs,
		Workers: DefaultWorkers,
		Logger:  logging.Discard(),
	}
}

// Run disburses every payslip. The returned error is non-nil only when the
// run itself could not complete (misconfiguration or cancellation); payslip
// failures are in the report.
func (r *Runner) Run(ctx context.Context, payslips []Payslip) (RunReport, error) {
	if r.Configs == nil || r.Runs == nil {
		return RunReport{}, errors.New("payroll runner requires config and run stores")
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	report := RunReport{
		RunID:     uuid.NewString(),
		Total:     decimal.Zero,
		Outcomes:  make([]Outcome, len(payslips)),
		StartedAt: time.Now().UTC(),
	}
	logger = logger.With("run_id", report.RunID)
	logger.Info("payroll run started", "payslips", len(payslips), "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range payslips {
		if err := gctx.Err(); err != nil {
			report.Outcomes[i] = Outcome{PayslipID: p.ID, BeneficiaryID: p.BeneficiaryID, Status: StatusCancelled, Err: err}
			continue
		}
		i, p := i, p
		g.Go(func() error {
			// Each goroutine owns exactly one slot of Outcomes.
			report.Outcomes[i] = r.process(gctx, report.RunID, p, logger)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusPaid:
			report.Succeeded++
			report.Total = report.Total.Add(o.Result.NetAmount)
		case StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		r.Metrics.RecordPayslip(string(o.Status))
	}
	report.Elapsed = time.Since(report.StartedAt)
	r.Metrics.ObserveRun(report.Elapsed)

	logger.Info("payroll run finished",
		"paid", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"total", report.Total.StringFixed(r.Allocator.Precision()),
		"elapsed", report.Elapsed,
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("payroll run %s interrupted: %w", report.RunID, err)
	}
	return report, nil
}

func (r *Runner) process(ctx context.Context, runID string, p Payslip, logger *slog.Logger) Outcome {
	out := Outcome{PayslipID: p.ID, BeneficiaryID: p.BeneficiaryID}
	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = err
		logger.Warn("payslip not disbursed",
			"payslip_id", p.ID,
			"beneficiary_id", p.BeneficiaryID,
			"code", disbursement.Code(err),
			"error", err,
		)
		return out
	}

	if err := ctx.Err(); err != nil {
		out.Status = StatusCancelled
		out.Err = err
		return out
	}
	if strings.TrimSpace(p.ID) == "" {
		return fail(ErrMissingPayslipID)
	}

	cfg, err := r.Configs.LoadConfig(ctx, p.BeneficiaryID)
	if err != nil {
		return fail(err)
	}

	result, err := r.Allocator.Allocate(p.NetAmount, cfg)
	r.Metrics.RecordAllocation(result, r.Allocator.Precision(), err)
	if err != nil {
		return fail(err)
	}

	d := disbursement.NewDisbursement(uuid.NewString(), runID, p.BeneficiaryID, p.ID, result)
	if err := r.Runs.SaveDisbursement(ctx, d); err != nil {
		if errors.Is(err, disbursement.ErrDuplicateDisbursement) {
			out.Status = StatusSkipped
			out.Err = err
			logger.Info("payslip already disbursed", "payslip_id", p.ID)
			return out
		}
		return fail(fmt.Errorf("save disbursement: %w", err))
	}

	out.Status = StatusPaid
	out.DisbursementID = d.ID
	out.Result = &result
	logger.Debug("payslip disbursed",
		"payslip_id", p.ID,
		"beneficiary_id", p.BeneficiaryID,
		"net", result.NetAmount.String(),
		"residual", result.Residual.String(),
	)
	return out
}
