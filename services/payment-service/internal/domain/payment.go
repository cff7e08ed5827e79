package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount is the largest single charge the service accepts
const MaxAmount = 10000.0

// Errors
var (
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicateOrder  = errors.New("order already has a payment")
	ErrNotRefundable   = errors.New("only successful payments can be refunded")
	ErrVersionConflict = errors.New("payment was modified concurrently")
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// CardDetails are the raw card fields of a charge. They are never stored;
// only the masked form in Payment.PaymentDetails is persisted.
type CardDetails struct {
	CardNumber     string
	CardHolder     string
	ExpiryMonth    string
	ExpiryYear     string
	CVV            string
	BillingAddress string
}

// Mask renders the card as "Card: ****1234, Holder: Name"
func (d *CardDetails) Mask() string {
	if d == nil {
		return ""
	}

	parts := make([]string, 0, 2)
	if number := strings.ReplaceAll(d.CardNumber, " ", ""); len(number) >= 4 {
		parts = append(parts, "Card: ****"+number[len(number)-4:])
	}
	if holder := strings.TrimSpace(d.CardHolder); holder != "" {
		parts = append(parts, "Holder: "+holder)
	}
	return strings.Join(parts, ", ")
}

// Payment is the aggregate root for one charge against an order
type Payment struct {
	ID             string        `bson:"_id"`
	OrderID        string        `bson:"orderId,omitempty"`
	OwnerID        string        `bson:"ownerId"`
	Amount         float64       `bson:"amount"`
	Currency       string        `bson:"currency"`
	PaymentMethod  string        `bson:"paymentMethod"`
	TransactionID  string        `bson:"transactionId"`
	PaymentDetails string        `bson:"paymentDetails,omitempty"`
	Status         PaymentStatus `bson:"status"`
	FailureReason  string        `bson:"failureReason,omitempty"`
	Version        int64         `bson:"version"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
	RefundedAt     *time.Time    `bson:"refundedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-"`
}

// NewPaymentInput carries the fields of a new charge
type NewPaymentInput struct {
	OrderID       string
	OwnerID       string
	Amount        float64
	Currency      string
	PaymentMethod string
	Card          *CardDetails
}

// NewPayment validates input and creates a PENDING payment with a fresh
// transaction id
func NewPayment(input NewPaymentInput, now time.Time) (*Payment, error) {
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, fmt.Errorf("%w: ownerId is required", ErrInvalidPayment)
	}
	if input.Amount <= 0 || math.IsNaN(input.Amount) || math.IsInf(input.Amount, 0) {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidPayment)
	}
	if len(strings.TrimSpace(input.Currency)) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3 letter code", ErrInvalidPayment)
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return nil, fmt.Errorf("%w: paymentMethod is required", ErrInvalidPayment)
	}

	return &Payment{
		ID:             uuid.NewString(),
		OrderID:        strings.TrimSpace(input.OrderID),
		OwnerID:        input.OwnerID,
		Amount:         input.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		PaymentMethod:  input.PaymentMethod,
		TransactionID:  NewTransactionID(),
		PaymentDetails: input.Card.Mask(),
		Status:         PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Matches reports whether a request for the same order asks for this
// payment: same owner, same currency, same amount in cents
func (p *Payment) Matches(ownerID string, amount float64, currency string) bool {
	if p.OwnerID != ownerID || p.Currency != strings.ToUpper(strings.TrimSpace(currency)) {
		return false
	}
	return decimal.NewFromFloat(p.Amount).Round(2).Equal(decimal.NewFromFloat(amount).Round(2))
}

// NewTransactionID returns "TXN_" followed by 16 upper-case hex digits
func NewTransactionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN_" + strings.ToUpper(hex[:16])
}

// Approve marks a pending payment as captured
func (p *Payment) Approve(now time.Time) {
	p.Status = PaymentStatusSuccess
	p.UpdatedAt = now
	p.addDomainEvent(&PaymentProcessedEvent{PaymentChange: p.change(), ProcessedAt: now})
}

// Decline marks a pending payment as failed with reason
func (p *Payment) Decline(reason string, now time.Time) {
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	p.addDomainEvent(&PaymentDeclinedEvent{PaymentChange: p.change(), Reason: reason, DeclinedAt: now})
}

// Refund reverses a successful payment
func (p *Payment) Refund(now time.Time) error {
	if p.Status != PaymentStatusSuccess {
		return ErrNotRefundable
	}
	p.Status = PaymentStatusRefunded
	p.RefundedAt = &now
	p.UpdatedAt = now
	p.addDomainEvent(&PaymentRefundedEvent{PaymentChange: p.change(), RefundedAt: now})
	return nil
}

// IsValid reports whether the payment was captured and not reversed
func (p *Payment) IsValid() bool {
	return p.Status == PaymentStatusSuccess
}

func (p *Payment) change() PaymentChange {
	return PaymentChange{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		OwnerID:       p.OwnerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
	}
}

func (p *Payment) addDomainEvent(event DomainEvent) {
	p.DomainEvents = append(p.DomainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (p *Payment) GetDomainEvents() []DomainEvent {
	return p.DomainEvents
}

// ClearDomainEvents clears all pending domain events
func (p *Payment) ClearDomainEvents() {
	p.DomainEvents = nil
}
