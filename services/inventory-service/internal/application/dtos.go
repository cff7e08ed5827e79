package application

import "time"

// ItemDTO represents an inventory item in responses. Quantities are
// computed at read time.
type ItemDTO struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku,omitempty"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Category          string    `json:"category"`
	UnitPrice         float64   `json:"unitPrice"`
	Currency          string    `json:"currency"`
	TotalQuantity     int       `json:"totalQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	ActiveHolds       []HoldDTO `json:"activeHolds"`
	IsActive          bool      `json:"isActive"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HoldDTO represents an active hold
type HoldDTO struct {
	HoldID    string    `json:"holdId"`
	OwnerID   string    `json:"ownerId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CheckStockResult answers CheckStock
type CheckStockResult struct {
	Available    bool   `json:"available"`
	CurrentStock int    `json:"currentStock"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
}

// ReserveStockResult answers ReserveStock
type ReserveStockResult struct {
	Success          bool       `json:"success"`
	HoldID           string     `json:"holdId,omitempty"`
	ReservedQuantity int        `json:"reservedQuantity"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	Message          string     `json:"message"`
	Code             string     `json:"code,omitempty"`
}

// ReleaseStockResult answers ReleaseStock
type ReleaseStockResult struct {
	Success          bool   `json:"success"`
	ReleasedQuantity int    `json:"releasedQuantity"`
	Message          string `json:"message"`
	Code             string `json:"code,omitempty"`
}

// FinalizeStockResult answers FinalizeStock
type FinalizeStockResult struct {
	Success           bool   `json:"success"`
	FinalizedQuantity int    `json:"finalizedQuantity"`
	RemainingQuantity int    `json:"remainingQuantity"`
	Message           string `json:"message"`
	Code              string `json:"code,omitempty"`
}

// ItemResult answers GetItem, CreateItem and ReceiveStock
type ItemResult struct {
	Success bool     `json:"success"`
	Item    *ItemDTO `json:"item,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}
