package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// PaymentChange is the payment state carried by every payment event
type PaymentChange struct {
	PaymentID     string  `json:"paymentId"`
	OrderID       string  `json:"orderId"`
	OwnerID       string  `json:"ownerId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId"`
}

// PaymentProcessedEvent is recorded when a charge is captured
type PaymentProcessedEvent struct {
	PaymentChange
	ProcessedAt time.Time `json:"processedAt"`
}

func (e *PaymentProcessedEvent) EventType() string     { return "payment.processed" }
func (e *PaymentProcessedEvent) OccurredAt() time.Time { return e.ProcessedAt }

// PaymentDeclinedEvent is recorded when a charge is rejected
type PaymentDeclinedEvent struct {
	PaymentChange
	Reason     string    `json:"reason"`
	DeclinedAt time.Time `json:"declinedAt"`
}

func (e *PaymentDeclinedEvent) EventType() string     { return "payment.declined" }
func (e *PaymentDeclinedEvent) OccurredAt() time.Time { return e.DeclinedAt }

// PaymentRefundedEvent is recorded when a captured charge is reversed
type PaymentRefundedEvent struct {
	PaymentChange
	RefundedAt time.Time `json:"refundedAt"`
}

func (e *PaymentRefundedEvent) EventType() string     { return "payment.refunded" }
func (e *PaymentRefundedEvent) OccurredAt() time.Time { return e.RefundedAt }
