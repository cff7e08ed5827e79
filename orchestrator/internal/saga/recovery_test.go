package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
)

// stuck seeds an execution that stopped in state at t0, with a live hold
// when state owns one
func stuck(t *testing.T, h *harness, id string, state State) *Execution {
	t.Helper()

	exec := NewExecution(id, "ORDER_"+id, "hold-"+id, purchase(2), DefaultCurrency, t0)
	path := []State{StateStockChecked, StateReserved, StatePriceFetched, StatePaymentSubmitted}
	for _, next := range path {
		if exec.State == state {
			break
		}
		require.NoError(t, exec.TransitionTo(next, t0))
	}
	require.Equal(t, state, exec.State)
	exec.ClearDomainEvents()

	if state.HoldsStock() {
		h.inventory.hold("item-1", exec.HoldID, exec.Quantity)
	}
	h.store.put(exec)
	return exec
}

func TestRecoverOnce_ReleasesStaleReservations(t *testing.T) {
	h := newHarness(t)
	reserved := stuck(t, h, "a", StateReserved)
	priced := stuck(t, h, "b", StatePriceFetched)
	require.Equal(t, 6, h.inventory.available("item-1"))

	h.clock.Advance(DefaultRecoveryAfter + time.Second)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, logging.NewNop())

	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 10, h.inventory.available("item-1"))
	assert.Equal(t, 2, h.inventory.callCount(StepReleaseStock))

	for _, id := range []string{reserved.ID, priced.ID} {
		exec := h.store.get(id)
		assert.Equal(t, StateFailed, exec.State)
		assert.True(t, exec.Compensated())
		require.NotNil(t, exec.Failure)
		assert.Equal(t, StepRecovery, exec.Failure.Step)
		assert.Equal(t, CodeAbandoned, exec.Failure.Code)
	}
	assert.Equal(t, []string{"purchase.failed", "purchase.failed"}, h.store.eventTypes())
}

func TestRecoverOnce_FailsStaleExecutionsWithoutHold(t *testing.T) {
	h := newHarness(t)
	exec := stuck(t, h, "a", StateStockChecked)

	h.clock.Advance(DefaultRecoveryAfter + time.Second)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StateFailed, h.store.get(exec.ID).State)
	assert.Zero(t, h.inventory.callCount(StepReleaseStock))
}

func TestRecoverOnce_LeavesFreshAndPaidExecutions(t *testing.T) {
	h := newHarness(t)
	paid := stuck(t, h, "paid", StatePaymentSubmitted)

	h.clock.Advance(DefaultRecoveryAfter + time.Second)
	fresh := stuck(t, h, "fresh", StateReserved)
	fresh.UpdatedAt = h.clock.Now()
	h.store.put(fresh)

	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, StatePaymentSubmitted, h.store.get(paid.ID).State)
	assert.Equal(t, StateReserved, h.store.get(fresh.ID).State)
	assert.Zero(t, h.inventory.callCount(StepReleaseStock))
	assert.Equal(t, 6, h.inventory.available("item-1"))
}

func TestRecoverOnce_SkipsExecutionsClaimedElsewhere(t *testing.T) {
	h := newHarness(t)
	exec := stuck(t, h, "a", StateReserved)
	h.store.conflictFor[exec.ID] = true

	h.clock.Advance(DefaultRecoveryAfter + time.Second)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.inventory.callCount(StepReleaseStock))
	assert.Equal(t, 8, h.inventory.available("item-1"))
}

// paidUnfinalized runs a purchase whose in-line finalize attempts all fault
func paidUnfinalized(t *testing.T, h *harness) string {
	t.Helper()

	h.inventory.failNext[StepFinalizeStock] = DefaultFinalizeAttempts
	result, err := h.orchestrator.Purchase(context.Background(), purchase(3))
	require.NoError(t, err)
	require.True(t, result.Success)

	data := result.Data.(*PurchaseData)
	require.False(t, data.Finalized)
	require.Equal(t, 1, h.inventory.holdCount("item-1"))
	return data.SagaID
}

func TestRecoverOnce_FinalizesPaidPurchases(t *testing.T) {
	h := newHarness(t)
	sagaID := paidUnfinalized(t, h)
	h.clock.Advance(DefaultRecoveryAfter + time.Second)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	// still faulting: left for the next pass
	h.inventory.errs[StepFinalizeStock] = apperrors.ErrTimeout("finalize")
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, h.store.get(sagaID).NeedsFinalize())
	assert.Equal(t, 10, h.inventory.total("item-1"))

	delete(h.inventory.errs, StepFinalizeStock)
	n, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 7, h.inventory.total("item-1"))
	assert.Zero(t, h.inventory.holdCount("item-1"))
	assert.Equal(t, 7, h.inventory.available("item-1"))

	exec := h.store.get(sagaID)
	assert.Equal(t, StateCompleted, exec.State)
	assert.True(t, exec.Finalized)
	assert.Empty(t, exec.Finalizing.LastError)
	assert.Equal(t, 2*DefaultFinalizeAttempts+1, exec.Finalizing.Attempts)

	// nothing left to do
	calls := h.inventory.callCount(StepFinalizeStock)
	n, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls, h.inventory.callCount(StepFinalizeStock))
}

func TestRecoverOnce_FinalizeLandedEarlierIsRecorded(t *testing.T) {
	h := newHarness(t)
	sagaID := paidUnfinalized(t, h)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	h.inventory.loseReply[StepFinalizeStock] = 1
	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, h.store.get(sagaID).Finalized)
	assert.Equal(t, 7, h.inventory.total("item-1"))
}

func TestRecoverOnce_GivesUpOnLapsedHold(t *testing.T) {
	h := newHarness(t)
	sagaID := paidUnfinalized(t, h)
	exec := h.store.get(sagaID)

	h.clock.Advance(16 * time.Minute)
	h.inventory.expire("item-1", exec.HoldID)
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	exec = h.store.get(sagaID)
	assert.False(t, exec.Finalized)
	assert.True(t, exec.Finalizing.Abandoned)
	assert.Equal(t, apperrors.CodeHoldNotFound, exec.Finalizing.LastError)

	calls := h.inventory.callCount(StepFinalizeStock)
	_, err = recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, h.inventory.callCount(StepFinalizeStock))
}

func TestRecoverOnce_SkipsFinalizeRecordedElsewhere(t *testing.T) {
	h := newHarness(t)
	sagaID := paidUnfinalized(t, h)
	h.store.conflictFor[sagaID] = true
	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Minute, nil)

	n, err := recoverer.RecoverOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRecoverer_CoversWholeSaga(t *testing.T) {
	h := newHarness(t, WithStepTimeout(time.Minute))

	recoverer := NewRecoverer(h.orchestrator, time.Second, 0, nil)
	assert.Equal(t, 6*(time.Minute+DefaultSaveTimeout), recoverer.after)
	assert.Equal(t, DefaultRecoveryInterval, recoverer.interval)
}

func TestRecoverer_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	stuck(t, h, "a", StateReserved)
	h.clock.Advance(DefaultRecoveryAfter + time.Second)

	recoverer := NewRecoverer(h.orchestrator, DefaultRecoveryAfter, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- recoverer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.inventory.callCount(StepReleaseStock) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recoverer did not stop")
	}
}
