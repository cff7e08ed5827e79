package saga

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/resilience"
)

const (
	// DefaultStepTimeout bounds every remote call of a saga
	DefaultStepTimeout = 10 * time.Second
	// DefaultSaveTimeout bounds every write of the execution record
	DefaultSaveTimeout = 5 * time.Second
	// DefaultFinalizeAttempts is how many finalize calls a saga makes in-line
	DefaultFinalizeAttempts = 3
	// DefaultCurrency is charged when the item carries no currency
	DefaultCurrency = "USD"
	// DefaultPaymentMethod is sent when the request names none
	DefaultPaymentMethod = "CreditCard"
	// OrderPrefix starts every generated order reference
	OrderPrefix = "ORDER_"
)

// CodeAbandoned marks sagas failed by recovery
const CodeAbandoned = "SAGA_ABANDONED"

// Response messages
const (
	MsgPurchaseCompleted    = "Purchase completed successfully"
	MsgFinalizePending      = "Purchase completed successfully; stock finalization is pending"
	MsgInsufficientStock    = "Insufficient stock"
	MsgReserveFailed        = "Failed to reserve stock"
	MsgItemNotFound         = "Item not found"
	MsgPaymentFailed        = "Payment failed"
	MsgPaymentUnavailable   = "Payment service unavailable"
	MsgPaymentTimeout       = "Payment service timed out"
	MsgInventoryUnavailable = "Inventory service unavailable"
	MsgInventoryTimeout     = "Inventory service timed out"
	MsgAbandoned            = "Purchase was abandoned and its reservation released"
	MsgNotRecorded          = "Purchase could not be recorded"
)

// PurchaseOrchestrator drives one purchase saga per request across the
// inventory facade and the payment collaborator.
type PurchaseOrchestrator struct {
	inventory   InventoryPort
	payment     PaymentPort
	store       ExecutionStore
	clock       clock.Clock
	logger      *logging.Logger
	metrics     *metrics.Metrics
	stepTimeout time.Duration
	saveTimeout time.Duration
	finalize    *resilience.RetryConfig
	newID       func() string
}

// Option configures a PurchaseOrchestrator
type Option func(*PurchaseOrchestrator)

// WithStepTimeout overrides DefaultStepTimeout
func WithStepTimeout(d time.Duration) Option {
	return func(o *PurchaseOrchestrator) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// WithSaveTimeout overrides DefaultSaveTimeout
func WithSaveTimeout(d time.Duration) Option {
	return func(o *PurchaseOrchestrator) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}

// WithFinalizeRetry sets how many finalize calls a saga makes in-line and
// the first backoff between them
func WithFinalizeRetry(attempts int, delay time.Duration) Option {
	return func(o *PurchaseOrchestrator) {
		if attempts > 0 {
			o.finalize.MaxAttempts = attempts
		}
		if delay > 0 {
			o.finalize.InitialDelay = delay
			o.finalize.MaxDelay = 4 * delay
		}
	}
}

// WithMetrics records saga metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *PurchaseOrchestrator) {
		o.metrics = m
	}
}

// NewPurchaseOrchestrator creates a new PurchaseOrchestrator
func NewPurchaseOrchestrator(inventory InventoryPort, payment PaymentPort, store ExecutionStore, clk clock.Clock, logger *logging.Logger, opts ...Option) *PurchaseOrchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	finalize := resilience.DefaultRetryConfig()
	finalize.MaxAttempts = DefaultFinalizeAttempts
	finalize.RetryableErrors = func(err error) bool {
		appErr, ok := apperrors.AsAppError(err)
		return !ok || appErr.IsTransient()
	}

	o := &PurchaseOrchestrator{
		inventory:   inventory,
		payment:     payment,
		store:       store,
		clock:       clk,
		logger:      logger.WithComponent("purchase-saga"),
		stepTimeout: DefaultStepTimeout,
		saveTimeout: DefaultSaveTimeout,
		finalize:    finalize,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StepTimeout returns the bound applied to each remote call
func (o *PurchaseOrchestrator) StepTimeout() time.Duration {
	return o.stepTimeout
}

// RunBudget is the longest a live saga can take between two recorded
// transitions before it has submitted the payment
func (o *PurchaseOrchestrator) RunBudget() time.Duration {
	return 6 * (o.stepTimeout + o.saveTimeout)
}

// Purchase runs a saga to a terminal state. Saga outcomes, failures
// included, are returned as a Result; an error means the saga never started.
// The caller's cancellation is not propagated to the steps.
func (o *PurchaseOrchestrator) Purchase(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sagaID := o.newID()
	ctx = logging.ContextWithSagaID(context.WithoutCancel(ctx), sagaID)
	start := time.Now()

	exec := NewExecution(sagaID, OrderPrefix+o.newID(), o.newID(), req, DefaultCurrency, o.clock.Now())
	if err := o.save(ctx, exec, o.store.Create); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to record saga execution")
		return nil, apperrors.ErrServiceUnavailable("saga store").Wrap(err)
	}
	o.logger.WithContext(ctx).Info("Purchase saga started",
		"sagaId", exec.ID,
		"orderId", exec.OrderID,
		"itemId", exec.ItemID,
		"quantity", exec.Quantity,
	)

	result := o.run(ctx, exec, req.card())

	failedStep := ""
	if exec.Failure != nil {
		failedStep = string(exec.Failure.Step)
	}
	o.metrics.RecordSaga(string(exec.State), failedStep, time.Since(start))
	o.logger.Audit(ctx, "purchase", "saga", exec.ID, exec.OwnerID, map[string]any{
		"state":       exec.State,
		"orderId":     exec.OrderID,
		"totalAmount": exec.TotalAmount,
	})
	return result, nil
}

func (o *PurchaseOrchestrator) run(ctx context.Context, exec *Execution, card *CardDetails) *Result {
	check, err := runStep(ctx, o, exec, StepCheckStock, func(ctx context.Context) (*StockCheck, error) {
		return o.inventory.CheckStock(ctx, exec.ItemID, exec.Quantity)
	})
	if err != nil {
		return o.fail(ctx, exec, fault(StepCheckStock, err))
	}
	if !check.Available {
		return o.fail(ctx, exec, rejection(StepCheckStock, check.Code, check.Message, apperrors.CodeInsufficientStock, MsgInsufficientStock))
	}
	o.advance(ctx, exec, StateStockChecked)

	reservation, err := runStep(ctx, o, exec, StepReserveStock, func(ctx context.Context) (*Reservation, error) {
		return o.inventory.ReserveStock(ctx, ReserveRequest{
			ItemID:   exec.ItemID,
			Quantity: exec.Quantity,
			OwnerID:  exec.OwnerID,
			HoldID:   exec.HoldID,
		})
	})
	if err != nil {
		return o.fail(ctx, exec, fault(StepReserveStock, err))
	}
	if !reservation.Success {
		return o.fail(ctx, exec, rejection(StepReserveStock, reservation.Code, reservation.Message, apperrors.CodeInsufficientStock, MsgReserveFailed))
	}
	if reservation.HoldID != "" {
		exec.HoldID = reservation.HoldID
	}
	exec.HoldExpiresAt = reservation.ExpiresAt
	o.advance(ctx, exec, StateReserved)

	lookup, err := runStep(ctx, o, exec, StepGetItem, func(ctx context.Context) (*ItemLookup, error) {
		return o.inventory.GetItem(ctx, exec.ItemID)
	})
	if err != nil {
		return o.fail(ctx, exec, fault(StepGetItem, err))
	}
	if !lookup.Success || lookup.Item == nil {
		return o.fail(ctx, exec, rejection(StepGetItem, lookup.Code, lookup.Message, apperrors.CodeItemNotFound, MsgItemNotFound))
	}
	exec.Item = lookup.Item
	exec.TotalAmount = totalAmount(lookup.Item.UnitPrice, exec.Quantity)
	if lookup.Item.Currency != "" {
		exec.Currency = lookup.Item.Currency
	}
	o.advance(ctx, exec, StatePriceFetched)

	// Recorded before the call: from here on the payment outcome may be
	// unknown to a recovering process. Without the record recovery could
	// release a hold that is about to be paid for, so nothing is charged.
	if err := o.advance(ctx, exec, StatePaymentSubmitted); err != nil {
		return o.fail(ctx, exec, Failure{Step: StepProcessPayment, Code: apperrors.CodeServiceUnavailable, Message: MsgNotRecorded})
	}
	payment, err := runStep(ctx, o, exec, StepProcessPayment, func(ctx context.Context) (*PaymentResponse, error) {
		return o.payment.ProcessPayment(ctx, PaymentRequest{
			OwnerID:       exec.OwnerID,
			Amount:        exec.TotalAmount,
			Currency:      exec.Currency,
			PaymentMethod: exec.PaymentMethod,
			OrderID:       exec.OrderID,
			Details:       card,
		})
	})
	if err != nil {
		return o.fail(ctx, exec, fault(StepProcessPayment, err))
	}
	if !payment.Success {
		return o.fail(ctx, exec, rejection(StepProcessPayment, payment.Code, payment.Message, apperrors.CodePaymentDeclined, MsgPaymentFailed))
	}
	exec.PaymentID = payment.PaymentID
	exec.TransactionID = payment.TransactionID

	o.finalizeHold(ctx, exec)
	o.advance(ctx, exec, StateCompleted)

	return successResult(exec)
}

// finalizeHold commits the hold of a paid saga, retrying faults. A
// HOLD_NOT_FOUND answer after an earlier attempt, while the hold was still
// within its TTL, means that earlier attempt landed. Any other rejection is
// final: the hold is gone and the paid units need a manual adjustment.
func (o *PurchaseOrchestrator) finalizeHold(ctx context.Context, exec *Execution) {
	if exec.Finalizing == nil {
		exec.Finalizing = &FinalizeProgress{}
	}
	progress := exec.Finalizing

	var retried bool
	finalization, err := resilience.RetryWithResult(ctx, o.finalize, func() (*Finalization, error) {
		retried = progress.Attempts > 0
		progress.Attempts++
		return runStep(ctx, o, exec, StepFinalizeStock, func(ctx context.Context) (*Finalization, error) {
			return o.inventory.FinalizeStock(ctx, exec.HoldID, exec.ItemID)
		})
	})
	now := o.clock.Now()
	progress.UpdatedAt = now

	switch {
	case err != nil:
		progress.LastError = err.Error()
		o.logger.WithContext(ctx).WithError(err).Warn("Stock finalization failed after payment, recovery will retry",
			"sagaId", exec.ID, "holdId", exec.HoldID, "paymentId", exec.PaymentID, "attempts", progress.Attempts)
	case finalization.Success:
		exec.Finalized = true
		progress.LastError = ""
	case finalization.Code == apperrors.CodeHoldNotFound && retried && exec.holdLive(now):
		exec.Finalized = true
		progress.LastError = ""
	default:
		progress.LastError = finalization.Code
		progress.Abandoned = true
		o.logger.WithContext(ctx).Error("Stock finalization rejected after payment, paid units need a manual adjustment",
			"sagaId", exec.ID, "holdId", exec.HoldID, "paymentId", exec.PaymentID,
			"code", finalization.Code, "message", finalization.Message)
	}
	o.metrics.RecordSagaFinalize(exec.Finalized)
}

// FinalizePaid retries the finalize of a completed saga whose hold was
// never committed and records the outcome. ErrVersionConflict means another
// process recorded it first.
func (o *PurchaseOrchestrator) FinalizePaid(ctx context.Context, exec *Execution) error {
	if !exec.NeedsFinalize() {
		return nil
	}
	o.finalizeHold(ctx, exec)
	exec.UpdatedAt = o.clock.Now()
	return o.save(ctx, exec, o.store.Save)
}

// fail drives exec to FAILED, releasing the hold first when one exists
func (o *PurchaseOrchestrator) fail(ctx context.Context, exec *Execution, failure Failure) *Result {
	exec.RecordFailure(failure)
	o.logger.WithContext(ctx).Warn("Purchase saga failed",
		"sagaId", exec.ID,
		"step", failure.Step,
		"code", failure.Code,
		"state", exec.State,
	)

	if exec.State.HoldsStock() {
		o.advance(ctx, exec, StateCompensating)
		o.compensate(ctx, exec)
	}
	o.advance(ctx, exec, StateFailed)

	return failureResult(exec)
}

// compensate issues the one release this execution is allowed. A failed
// release is recorded and left to the hold TTL.
func (o *PurchaseOrchestrator) compensate(ctx context.Context, exec *Execution) {
	if err := exec.BeginCompensation(o.clock.Now()); err != nil {
		o.logger.WithContext(ctx).Warn("Compensation already issued", "sagaId", exec.ID)
		return
	}

	release, err := runStep(ctx, o, exec, StepReleaseStock, func(ctx context.Context) (*Release, error) {
		return o.inventory.ReleaseStock(ctx, exec.HoldID, exec.ItemID)
	})

	compensation := exec.Compensation
	switch {
	case err != nil:
		compensation.Error = err.Error()
	case release.Success:
		compensation.Succeeded = true
		compensation.ReleasedQuantity = release.ReleasedQuantity
	case release.Code == apperrors.CodeHoldNotFound:
		// already released or expired
		compensation.Succeeded = true
	default:
		compensation.Error = release.Message
	}

	o.metrics.RecordCompensation(compensation.Succeeded)
	if !compensation.Succeeded {
		o.logger.WithContext(ctx).Error("Compensation failed, hold will expire",
			"sagaId", exec.ID,
			"holdId", exec.HoldID,
			"error", compensation.Error,
		)
		return
	}
	o.logger.WithContext(ctx).Info("Reservation released",
		"sagaId", exec.ID,
		"holdId", exec.HoldID,
		"releasedQuantity", compensation.ReleasedQuantity,
	)
}

// advance records a transition and persists the execution. Store failures
// are logged and returned; most callers carry on with the in-memory record.
func (o *PurchaseOrchestrator) advance(ctx context.Context, exec *Execution, next State) error {
	from := exec.State
	if err := exec.TransitionTo(next, o.clock.Now()); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Rejected saga transition", "sagaId", exec.ID)
		return err
	}
	o.logger.SagaTransition(ctx, exec.ID, string(from), string(next))

	if err := o.save(ctx, exec, o.store.Save); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to persist saga execution",
			"sagaId", exec.ID,
			"state", exec.State,
		)
		return err
	}
	return nil
}

// save runs one store write under the save timeout
func (o *PurchaseOrchestrator) save(ctx context.Context, exec *Execution, write func(context.Context, *Execution) error) error {
	saveCtx, cancel := context.WithTimeout(ctx, o.saveTimeout)
	defer cancel()
	return write(saveCtx, exec)
}

// Abandon fails an execution left behind by a stopped process, releasing
// its hold when it has one. The first save claims the execution; a version
// conflict means another process got there first.
func (o *PurchaseOrchestrator) Abandon(ctx context.Context, exec *Execution) error {
	exec.RecordFailure(Failure{Step: StepRecovery, Code: CodeAbandoned, Message: MsgAbandoned})

	if exec.State.HoldsStock() {
		if err := exec.TransitionTo(StateCompensating, o.clock.Now()); err != nil {
			return err
		}
		if err := o.save(ctx, exec, o.store.Save); err != nil {
			return err
		}
		o.compensate(ctx, exec)
	}

	if err := exec.TransitionTo(StateFailed, o.clock.Now()); err != nil {
		return err
	}
	if err := o.save(ctx, exec, o.store.Save); err != nil {
		return err
	}
	o.metrics.RecordSaga(string(exec.State), string(StepRecovery), exec.UpdatedAt.Sub(exec.CreatedAt))
	return nil
}

// GetExecution loads a recorded saga
func (o *PurchaseOrchestrator) GetExecution(ctx context.Context, sagaID string) (*Execution, error) {
	exec, err := o.store.FindByID(ctx, sagaID)
	if err != nil {
		if errors.Is(err, ErrExecutionNotFound) {
			return nil, apperrors.ErrNotFoundWithID("saga execution", sagaID)
		}
		o.logger.WithContext(ctx).WithError(err).Error("Failed to load saga execution", "sagaId", sagaID)
		return nil, apperrors.ErrServiceUnavailable("saga store").Wrap(err)
	}
	return exec, nil
}

// Ping checks the execution store
func (o *PurchaseOrchestrator) Ping(ctx context.Context) error {
	return o.store.Ping(ctx)
}

// runStep makes one remote call under the step timeout. A call that ends
// because the timeout fired is reported as a TIMEOUT error.
func runStep[T any](ctx context.Context, o *PurchaseOrchestrator, exec *Execution, step Step, call func(context.Context) (T, error)) (T, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := time.Now()
	result, err := call(stepCtx)
	if err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !apperrors.HasCode(err, apperrors.CodeTimeout) {
		err = apperrors.ErrTimeout(string(step)).Wrap(err)
	}
	elapsed := time.Since(start)

	o.metrics.RecordSagaStep(string(step), err == nil, elapsed)
	o.logger.SagaStep(ctx, exec.ID, string(step), elapsed, err)
	return result, err
}

func fault(step Step, err error) Failure {
	code := apperrors.CodeServiceUnavailable
	if appErr, ok := apperrors.AsAppError(err); ok {
		code = appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		code = apperrors.CodeTimeout
	}

	timedOut := code == apperrors.CodeTimeout
	message := MsgInventoryUnavailable
	switch {
	case step == StepProcessPayment && timedOut:
		message = MsgPaymentTimeout
	case step == StepProcessPayment:
		message = MsgPaymentUnavailable
	case timedOut:
		message = MsgInventoryTimeout
	}
	return Failure{Step: step, Code: code, Message: message}
}

func rejection(step Step, code, message, defaultCode, defaultMessage string) Failure {
	if code == "" {
		code = defaultCode
	}
	if message == "" {
		message = defaultMessage
	}
	return Failure{Step: step, Code: code, Message: message, Rejected: true}
}

// totalAmount is unitPrice x quantity rounded to cents
func totalAmount(unitPrice float64, quantity int) float64 {
	return decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromInt(int64(quantity))).
		Round(2).
		InexactFloat64()
}
