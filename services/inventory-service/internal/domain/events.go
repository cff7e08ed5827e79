package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// HoldChange is the state shared by every hold event. Quantities are the
// item's figures right after the change.
type HoldChange struct {
	ItemID            string    `json:"itemId"`
	HoldID            string    `json:"holdId"`
	OwnerID           string    `json:"ownerId"`
	Quantity          int       `json:"quantity"`
	ExpiresAt         time.Time `json:"expiresAt"`
	TotalQuantity     int       `json:"totalQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
}

// HoldPlacedEvent is recorded when a reserve succeeds
type HoldPlacedEvent struct {
	HoldChange
	PlacedAt time.Time `json:"placedAt"`
}

func (e *HoldPlacedEvent) EventType() string     { return "inventory.hold.placed" }
func (e *HoldPlacedEvent) OccurredAt() time.Time { return e.PlacedAt }

// HoldReleasedEvent is recorded when a hold is given back
type HoldReleasedEvent struct {
	HoldChange
	ReleasedAt time.Time `json:"releasedAt"`
}

func (e *HoldReleasedEvent) EventType() string     { return "inventory.hold.released" }
func (e *HoldReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// HoldFinalizedEvent is recorded when a hold becomes a sale
type HoldFinalizedEvent struct {
	HoldChange
	FinalizedAt time.Time `json:"finalizedAt"`
}

func (e *HoldFinalizedEvent) EventType() string     { return "inventory.hold.finalized" }
func (e *HoldFinalizedEvent) OccurredAt() time.Time { return e.FinalizedAt }

// HoldExpiredEvent is recorded when a sweep purges a hold past its TTL
type HoldExpiredEvent struct {
	HoldChange
	ExpiredAt time.Time `json:"expiredAt"`
}

func (e *HoldExpiredEvent) EventType() string     { return "inventory.hold.expired" }
func (e *HoldExpiredEvent) OccurredAt() time.Time { return e.ExpiredAt }

// StockReceivedEvent is recorded when stock is added to an item
type StockReceivedEvent struct {
	ItemID        string    `json:"itemId"`
	Quantity      int       `json:"quantity"`
	TotalQuantity int       `json:"totalQuantity"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

func (e *StockReceivedEvent) EventType() string     { return "inventory.stock.received" }
func (e *StockReceivedEvent) OccurredAt() time.Time { return e.ReceivedAt }

// ItemCreatedEvent is recorded when an item is seeded
type ItemCreatedEvent struct {
	ItemID        string    `json:"itemId"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	UnitPrice     float64   `json:"unitPrice"`
	Currency      string    `json:"currency"`
	TotalQuantity int       `json:"totalQuantity"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e *ItemCreatedEvent) EventType() string     { return "inventory.item.created" }
func (e *ItemCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }
