package saga

import (
	"context"
	"errors"
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
)

const (
	// DefaultRecoveryAfter is how long an execution may sit in a
	// non-terminal state before recovery takes it over
	DefaultRecoveryAfter = 2 * time.Minute
	// DefaultRecoveryInterval is how often recovery scans
	DefaultRecoveryInterval = 30 * time.Second
	// DefaultRecoveryBatchSize caps how many executions one pass visits
	DefaultRecoveryBatchSize = 100
)

// abandonable are the states recovery fails on its own. PAYMENT_SUBMITTED
// is left alone because the charge may have gone through.
var abandonable = []State{StateInit, StateStockChecked, StateReserved, StatePriceFetched}

// Recoverer fails executions orphaned by a stopped orchestrator and gives
// their holds back without waiting for the hold TTL. It also finalizes the
// holds of paid sagas whose finalize never landed, before those holds lapse.
type Recoverer struct {
	orchestrator *PurchaseOrchestrator
	store        ExecutionStore
	clock        clock.Clock
	after        time.Duration
	interval     time.Duration
	batchSize    int
	logger       *logging.Logger
}

// NewRecoverer creates a Recoverer. after is raised to cover a full saga
// run, store writes included, so a live saga is never taken over.
func NewRecoverer(orchestrator *PurchaseOrchestrator, after, interval time.Duration, logger *logging.Logger) *Recoverer {
	if after <= 0 {
		after = DefaultRecoveryAfter
	}
	if floor := orchestrator.RunBudget(); after < floor {
		after = floor
	}
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recoverer{
		orchestrator: orchestrator,
		store:        orchestrator.store,
		clock:        orchestrator.clock,
		after:        after,
		interval:     interval,
		batchSize:    DefaultRecoveryBatchSize,
		logger:       logger.WithComponent("saga-recovery"),
	}
}

// Run recovers once at startup and then every interval until ctx is
// cancelled
func (r *Recoverer) Run(ctx context.Context) error {
	r.logger.Info("Saga recovery started", "after", r.after.String(), "interval", r.interval.String())
	if _, err := r.RecoverOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.WithError(err).Error("Saga recovery failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Saga recovery stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RecoverOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Error("Saga recovery failed")
			}
		}
	}
}

// RecoverOnce abandons every stale execution, finalizes paid ones still
// holding stock, and returns how many it settled
func (r *Recoverer) RecoverOnce(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.after)

	stale, err := r.store.FindStale(ctx, abandonable, cutoff, r.batchSize)
	if err != nil {
		return 0, err
	}

	recovered := 0
	var firstErr error
	for _, exec := range stale {
		execCtx := logging.ContextWithSagaID(ctx, exec.ID)
		from := exec.State

		err := r.orchestrator.Abandon(execCtx, exec)
		switch {
		case err == nil:
			recovered++
			r.logger.WithContext(execCtx).Warn("Abandoned stale purchase saga",
				"sagaId", exec.ID,
				"from", from,
				"compensated", exec.Compensated(),
			)
		case errors.Is(err, ErrVersionConflict):
			r.logger.WithContext(execCtx).Debug("Stale saga moved on concurrently", "sagaId", exec.ID)
		default:
			r.logger.WithContext(execCtx).WithError(err).Error("Failed to abandon stale saga", "sagaId", exec.ID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.reportUnknownPayments(ctx, cutoff)

	finalized, err := r.finalizePaid(ctx)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return recovered + finalized, firstErr
}

// finalizePaid retries the finalize of completed sagas whose hold was never
// committed. Completed sagas are never written by a live run again, so
// there is no staleness wait.
func (r *Recoverer) finalizePaid(ctx context.Context) (int, error) {
	pending, err := r.store.FindUnfinalized(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	finalized := 0
	var firstErr error
	for _, exec := range pending {
		execCtx := logging.ContextWithSagaID(ctx, exec.ID)

		err := r.orchestrator.FinalizePaid(execCtx, exec)
		switch {
		case errors.Is(err, ErrVersionConflict):
			r.logger.WithContext(execCtx).Debug("Paid saga finalized concurrently", "sagaId", exec.ID)
		case err != nil:
			r.logger.WithContext(execCtx).WithError(err).Error("Failed to record finalize", "sagaId", exec.ID)
			if firstErr == nil {
				firstErr = err
			}
		case exec.Finalized:
			finalized++
			r.logger.WithContext(execCtx).Info("Finalized paid purchase",
				"sagaId", exec.ID,
				"holdId", exec.HoldID,
				"attempts", exec.Finalizing.Attempts,
			)
		}
	}
	return finalized, firstErr
}

// reportUnknownPayments logs executions stuck after the payment call. Their
// holds expire on their own; the charge needs a manual check.
func (r *Recoverer) reportUnknownPayments(ctx context.Context, cutoff time.Time) {
	stuck, err := r.store.FindStale(ctx, []State{StatePaymentSubmitted}, cutoff, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to list sagas stuck after payment")
		return
	}
	for _, exec := range stuck {
		r.logger.Warn("Saga stuck with unknown payment outcome",
			"sagaId", exec.ID,
			"orderId", exec.OrderID,
			"holdId", exec.HoldID,
			"since", exec.UpdatedAt,
		)
	}
}
