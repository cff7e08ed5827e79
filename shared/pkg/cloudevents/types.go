package cloudevents

import (
	"time"
)

// Inventory ledger events
const (
	HoldPlaced    = "inventory.hold.placed"
	HoldReleased  = "inventory.hold.released"
	HoldFinalized = "inventory.hold.finalized"
	HoldExpired   = "inventory.hold.expired"
	StockReceived = "inventory.stock.received"
	ItemCreated   = "inventory.item.created"
)

// Payment events
const (
	PaymentProcessed = "payment.processed"
	PaymentDeclined  = "payment.declined"
	PaymentRefunded  = "payment.refunded"
)

// Purchase saga events
const (
	PurchaseCompleted = "purchase.completed"
	PurchaseFailed    = "purchase.failed"
)

// Event sources
const (
	SourceInventory    = "/commerce/inventory-service"
	SourcePayment      = "/commerce/payment-service"
	SourceOrchestrator = "/commerce/orchestrator"
)

// CloudEvent is a CloudEvents v1.0 envelope in structured JSON mode
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	// CorrelationID ties the event to the request that caused it
	CorrelationID string `json:"correlationid,omitempty"`
}

// HoldEventData is the payload of every inventory.hold.* event
type HoldEventData struct {
	ItemID            string    `json:"itemId"`
	HoldID            string    `json:"holdId"`
	OwnerID           string    `json:"ownerId"`
	Quantity          int       `json:"quantity"`
	ExpiresAt         time.Time `json:"expiresAt"`
	TotalQuantity     int       `json:"totalQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
}

// StockReceivedData is the payload of inventory.stock.received
type StockReceivedData struct {
	ItemID        string `json:"itemId"`
	Quantity      int    `json:"quantity"`
	TotalQuantity int    `json:"totalQuantity"`
}

// ItemCreatedData is the payload of inventory.item.created
type ItemCreatedData struct {
	ItemID        string  `json:"itemId"`
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	UnitPrice     float64 `json:"unitPrice"`
	Currency      string  `json:"currency"`
	TotalQuantity int     `json:"totalQuantity"`
}

// PaymentEventData is the payload of every payment.* event
type PaymentEventData struct {
	PaymentID     string  `json:"paymentId"`
	OrderID       string  `json:"orderId"`
	OwnerID       string  `json:"ownerId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transactionId,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// PurchaseEventData is the payload of purchase.completed and purchase.failed
type PurchaseEventData struct {
	SagaID        string  `json:"sagaId"`
	OrderID       string  `json:"orderId"`
	ItemID        string  `json:"itemId"`
	OwnerID       string  `json:"ownerId"`
	Quantity      int     `json:"quantity"`
	TotalAmount   float64 `json:"totalAmount,omitempty"`
	PaymentID     string  `json:"paymentId,omitempty"`
	HoldID        string  `json:"holdId,omitempty"`
	State         string  `json:"state"`
	FailedStep    string  `json:"failedStep,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
	Compensated   bool    `json:"compensated"`
}
