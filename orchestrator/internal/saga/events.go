package saga

import "time"

// DomainEvent is the interface for all saga events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// PurchaseChange is the saga snapshot carried by purchase events
type PurchaseChange struct {
	SagaID        string  `json:"sagaId"`
	OrderID       string  `json:"orderId"`
	ItemID        string  `json:"itemId"`
	OwnerID       string  `json:"ownerId"`
	Quantity      int     `json:"quantity"`
	TotalAmount   float64 `json:"totalAmount,omitempty"`
	PaymentID     string  `json:"paymentId,omitempty"`
	HoldID        string  `json:"holdId,omitempty"`
	State         State   `json:"state"`
	FailedStep    Step    `json:"failedStep,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
	Compensated   bool    `json:"compensated"`
}

// PurchaseCompletedEvent is recorded when a saga reaches COMPLETED
type PurchaseCompletedEvent struct {
	PurchaseChange
	CompletedAt time.Time `json:"completedAt"`
}

func (e *PurchaseCompletedEvent) EventType() string     { return "purchase.completed" }
func (e *PurchaseCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// PurchaseFailedEvent is recorded when a saga reaches FAILED
type PurchaseFailedEvent struct {
	PurchaseChange
	FailedAt time.Time `json:"failedAt"`
}

func (e *PurchaseFailedEvent) EventType() string     { return "purchase.failed" }
func (e *PurchaseFailedEvent) OccurredAt() time.Time { return e.FailedAt }
