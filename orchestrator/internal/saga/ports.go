package saga

import (
	"context"
	"time"
)

// InventoryPort is the orchestrator's view of the inventory facade.
// Business outcomes (unknown item, short stock, unknown hold) come back
// in-band with Success false and a Code; a returned error always means the
// call itself failed.
type InventoryPort interface {
	CheckStock(ctx context.Context, itemID string, quantity int) (*StockCheck, error)
	ReserveStock(ctx context.Context, req ReserveRequest) (*Reservation, error)
	GetItem(ctx context.Context, itemID string) (*ItemLookup, error)
	ReleaseStock(ctx context.Context, holdID, itemID string) (*Release, error)
	FinalizeStock(ctx context.Context, holdID, itemID string) (*Finalization, error)
}

// PaymentPort is the orchestrator's view of the payment collaborator.
// A decline is in-band; an error means the outcome is unknown.
type PaymentPort interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
}

// StockCheck answers CheckStock
type StockCheck struct {
	Available    bool   `json:"available"`
	CurrentStock int    `json:"currentStock"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
}

// ReserveRequest places a hold under a caller-chosen id
type ReserveRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	OwnerID  string `json:"ownerId"`
	HoldID   string `json:"holdId,omitempty"`
}

// Reservation answers ReserveStock
type Reservation struct {
	Success          bool       `json:"success"`
	HoldID           string     `json:"holdId,omitempty"`
	ReservedQuantity int        `json:"reservedQuantity"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	Message          string     `json:"message"`
	Code             string     `json:"code,omitempty"`
}

// Item is the snapshot of an item taken for pricing
type Item struct {
	ID                string  `bson:"id" json:"id"`
	SKU               string  `bson:"sku,omitempty" json:"sku,omitempty"`
	Name              string  `bson:"name" json:"name"`
	Description       string  `bson:"description,omitempty" json:"description,omitempty"`
	Category          string  `bson:"category,omitempty" json:"category,omitempty"`
	UnitPrice         float64 `bson:"unitPrice" json:"unitPrice"`
	Currency          string  `bson:"currency,omitempty" json:"currency,omitempty"`
	TotalQuantity     int     `bson:"totalQuantity" json:"totalQuantity"`
	AvailableQuantity int     `bson:"availableQuantity" json:"availableQuantity"`
}

// ItemLookup answers GetItem
type ItemLookup struct {
	Success bool   `json:"success"`
	Item    *Item  `json:"item,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Release answers ReleaseStock
type Release struct {
	Success          bool   `json:"success"`
	ReleasedQuantity int    `json:"releasedQuantity"`
	Message          string `json:"message"`
	Code             string `json:"code,omitempty"`
}

// Finalization answers FinalizeStock
type Finalization struct {
	Success           bool   `json:"success"`
	FinalizedQuantity int    `json:"finalizedQuantity"`
	RemainingQuantity int    `json:"remainingQuantity"`
	Message           string `json:"message"`
	Code              string `json:"code,omitempty"`
}

// CardDetails is the card block forwarded to the payment collaborator
type CardDetails struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	CardHolder     string `json:"cardHolder,omitempty"`
	ExpiryMonth    string `json:"expiryMonth,omitempty"`
	ExpiryYear     string `json:"expiryYear,omitempty"`
	CVV            string `json:"cvv,omitempty"`
	BillingAddress string `json:"billingAddress,omitempty"`
}

// PaymentRequest is the body sent to the payment collaborator
type PaymentRequest struct {
	OwnerID       string       `json:"ownerId"`
	Amount        float64      `json:"amount"`
	Currency      string       `json:"currency"`
	PaymentMethod string       `json:"paymentMethod"`
	OrderID       string       `json:"orderId"`
	Details       *CardDetails `json:"details,omitempty"`
}

// PaymentResponse is the collaborator's answer
type PaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
}
