package saga

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrExecutionNotFound  = errors.New("saga execution not found")
	ErrExecutionExists    = errors.New("saga execution already exists")
	ErrVersionConflict    = errors.New("saga execution was modified concurrently")
	ErrInvalidTransition  = errors.New("invalid saga transition")
	ErrAlreadyCompensated = errors.New("saga already compensated")
)

// Transition is one recorded move of the state machine
type Transition struct {
	From State     `bson:"from" json:"from"`
	To   State     `bson:"to" json:"to"`
	At   time.Time `bson:"at" json:"at"`
}

// Compensation records the single release issued for a failed saga
type Compensation struct {
	HoldID           string    `bson:"holdId" json:"holdId"`
	Succeeded        bool      `bson:"succeeded" json:"succeeded"`
	ReleasedQuantity int       `bson:"releasedQuantity" json:"releasedQuantity"`
	Error            string    `bson:"error,omitempty" json:"error,omitempty"`
	AttemptedAt      time.Time `bson:"attemptedAt" json:"attemptedAt"`
}

// FinalizeProgress tracks committing the hold of a paid saga. A saga with
// Abandoned set is no longer retried and needs a manual stock adjustment.
type FinalizeProgress struct {
	Attempts  int       `bson:"attempts" json:"attempts"`
	LastError string    `bson:"lastError,omitempty" json:"lastError,omitempty"`
	Abandoned bool      `bson:"abandoned" json:"abandoned"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Failure describes why a saga stopped
type Failure struct {
	Step    Step   `bson:"step" json:"step"`
	Code    string `bson:"code" json:"code"`
	Message string `bson:"message" json:"message"`
	// Rejected is true for business outcomes, false for upstream faults
	Rejected bool `bson:"rejected" json:"rejected"`
}

// Execution is the persisted record of one purchase saga
type Execution struct {
	ID            string            `bson:"_id" json:"sagaId"`
	OrderID       string            `bson:"orderId" json:"orderId"`
	ItemID        string            `bson:"itemId" json:"itemId"`
	OwnerID       string            `bson:"ownerId" json:"ownerId"`
	Quantity      int               `bson:"quantity" json:"quantity"`
	PaymentMethod string            `bson:"paymentMethod" json:"paymentMethod"`
	State         State             `bson:"state" json:"state"`
	HoldID        string            `bson:"holdId,omitempty" json:"holdId,omitempty"`
	HoldExpiresAt *time.Time        `bson:"holdExpiresAt,omitempty" json:"holdExpiresAt,omitempty"`
	Item          *Item             `bson:"item,omitempty" json:"item,omitempty"`
	TotalAmount   float64           `bson:"totalAmount,omitempty" json:"totalAmount,omitempty"`
	Currency      string            `bson:"currency" json:"currency"`
	PaymentID     string            `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	TransactionID string            `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	Finalized     bool              `bson:"finalized" json:"finalized"`
	Finalizing    *FinalizeProgress `bson:"finalizeProgress,omitempty" json:"finalizeProgress,omitempty"`
	Failure       *Failure          `bson:"failure,omitempty" json:"failure,omitempty"`
	Compensation  *Compensation     `bson:"compensation,omitempty" json:"compensation,omitempty"`
	Transitions   []Transition      `bson:"transitions" json:"transitions"`
	Version       int64             `bson:"version" json:"version"`
	CreatedAt     time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time         `bson:"updatedAt" json:"updatedAt"`
	CompletedAt   *time.Time        `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewExecution starts a saga record in INIT
func NewExecution(sagaID, orderID, holdID string, req PurchaseRequest, currency string, now time.Time) *Execution {
	return &Execution{
		ID:            sagaID,
		OrderID:       orderID,
		ItemID:        req.ItemID,
		OwnerID:       req.OwnerID,
		Quantity:      req.Quantity,
		PaymentMethod: req.paymentMethod(),
		State:         StateInit,
		HoldID:        holdID,
		Currency:      currency,
		Transitions:   make([]Transition, 0, 8),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionTo moves the saga to next, recording the move. Terminal states
// emit the matching purchase event.
func (e *Execution) TransitionTo(next State, now time.Time) error {
	if !CanTransition(e.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.State, next)
	}

	e.Transitions = append(e.Transitions, Transition{From: e.State, To: next, At: now})
	e.State = next
	e.UpdatedAt = now

	switch next {
	case StateCompleted:
		e.CompletedAt = &now
		e.addDomainEvent(&PurchaseCompletedEvent{PurchaseChange: e.change(), CompletedAt: now})
	case StateFailed:
		e.CompletedAt = &now
		e.addDomainEvent(&PurchaseFailedEvent{PurchaseChange: e.change(), FailedAt: now})
	}
	return nil
}

// RecordFailure keeps the first failure; later ones never overwrite it
func (e *Execution) RecordFailure(f Failure) {
	if e.Failure == nil {
		e.Failure = &f
	}
}

// BeginCompensation marks the hold release as issued. It fails if a release
// was already issued for this execution.
func (e *Execution) BeginCompensation(now time.Time) error {
	if e.Compensation != nil {
		return ErrAlreadyCompensated
	}
	e.Compensation = &Compensation{HoldID: e.HoldID, AttemptedAt: now}
	e.UpdatedAt = now
	return nil
}

// NeedsFinalize reports whether a paid saga still has to commit its hold
func (e *Execution) NeedsFinalize() bool {
	if e.State != StateCompleted || e.Finalized {
		return false
	}
	return e.Finalizing == nil || !e.Finalizing.Abandoned
}

// holdLive reports whether the hold was still within its TTL at now. An
// unknown expiry counts as lapsed.
func (e *Execution) holdLive(now time.Time) bool {
	return e.HoldExpiresAt != nil && now.Before(*e.HoldExpiresAt)
}

// Compensated reports whether the hold was given back
func (e *Execution) Compensated() bool {
	return e.Compensation != nil && e.Compensation.Succeeded
}

func (e *Execution) change() PurchaseChange {
	change := PurchaseChange{
		SagaID:      e.ID,
		OrderID:     e.OrderID,
		ItemID:      e.ItemID,
		OwnerID:     e.OwnerID,
		Quantity:    e.Quantity,
		TotalAmount: e.TotalAmount,
		PaymentID:   e.PaymentID,
		HoldID:      e.HoldID,
		State:       e.State,
		Compensated: e.Compensated(),
	}
	if e.Failure != nil {
		change.FailedStep = e.Failure.Step
		change.FailureReason = e.Failure.Message
	}
	return change
}

func (e *Execution) addDomainEvent(event DomainEvent) {
	e.DomainEvents = append(e.DomainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (e *Execution) GetDomainEvents() []DomainEvent {
	return e.DomainEvents
}

// ClearDomainEvents clears all pending domain events
func (e *Execution) ClearDomainEvents() {
	e.DomainEvents = nil
}
