package application

import (
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
)

// CardDetailsDTO is the card block of a process request
type CardDetailsDTO struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	CardHolder     string `json:"cardHolder,omitempty"`
	ExpiryMonth    string `json:"expiryMonth,omitempty"`
	ExpiryYear     string `json:"expiryYear,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	BillingAddress string `json:"billingAddress,omitempty"`
}

// ProcessPaymentCommand charges OwnerID for an order
type ProcessPaymentCommand struct {
	OwnerID       string          `json:"ownerId" binding:"required"`
	Amount        float64         `json:"amount" binding:"required,gt=0"`
	Currency      string          `json:"currency" binding:"required,currency"`
	PaymentMethod string          `json:"paymentMethod" binding:"required"`
	OrderID       string          `json:"orderId"`
	Details       *CardDetailsDTO `json:"details"`
}

func (c ProcessPaymentCommand) card() *domain.CardDetails {
	if c.Details == nil {
		return nil
	}
	return &domain.CardDetails{
		CardNumber:     c.Details.CardNumber,
		CardHolder:     c.Details.CardHolder,
		ExpiryMonth:    c.Details.ExpiryMonth,
		ExpiryYear:     c.Details.ExpiryYear,
		CVV:            c.Details.CVV,
		BillingAddress: c.Details.BillingAddress,
	}
}

// PaymentResult answers process, get, validate and refund. Declines and
// unknown payments are reported in-band through Success and Code.
type PaymentResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Code          string     `json:"code,omitempty"`
	PaymentID     string     `json:"paymentId,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	Status        string     `json:"status,omitempty"`
	OwnerID       string     `json:"ownerId,omitempty"`
	Amount        float64    `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	OrderID       string     `json:"orderId,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// PaymentDTO is one entry of a payment history
type PaymentDTO struct {
	PaymentID      string     `json:"paymentId"`
	TransactionID  string     `json:"transactionId"`
	Status         string     `json:"status"`
	OwnerID        string     `json:"ownerId"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	PaymentMethod  string     `json:"paymentMethod"`
	OrderID        string     `json:"orderId,omitempty"`
	PaymentDetails string     `json:"paymentDetails,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	RefundedAt     *time.Time `json:"refundedAt,omitempty"`
}

// HistoryResult lists an owner's payments
type HistoryResult struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Payments []PaymentDTO `json:"payments"`
}

func toResult(p *domain.Payment, success bool, message, code string) *PaymentResult {
	createdAt := p.CreatedAt
	return &PaymentResult{
		Success:       success,
		Message:       message,
		Code:          code,
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
		OwnerID:       p.OwnerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.PaymentMethod,
		OrderID:       p.OrderID,
		CreatedAt:     &createdAt,
	}
}

// ToPaymentDTO maps a payment onto its history entry
func ToPaymentDTO(p *domain.Payment) PaymentDTO {
	return PaymentDTO{
		PaymentID:      p.ID,
		TransactionID:  p.TransactionID,
		Status:         string(p.Status),
		OwnerID:        p.OwnerID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PaymentMethod:  p.PaymentMethod,
		OrderID:        p.OrderID,
		PaymentDetails: p.PaymentDetails,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		RefundedAt:     p.RefundedAt,
	}
}
