package domain

import (
	"errors"
	"strings"
	"time"
)

// DefaultHoldTTL is how long a hold keeps stock out of availability
const DefaultHoldTTL = 15 * time.Minute

// Errors
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrHoldNotFound      = errors.New("hold not found")
	ErrDuplicateHold     = errors.New("hold id is already active")
	ErrItemNotFound      = errors.New("item not found")
	ErrItemExists        = errors.New("item already exists")
	ErrInvalidItem       = errors.New("invalid item")
	ErrVersionConflict   = errors.New("item was modified concurrently")
)

// Category is the catalog category of an item
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryBooks       Category = "Books"
	CategoryHome        Category = "Home"
	CategorySports      Category = "Sports"
	CategoryBeauty      Category = "Beauty"
	CategoryToys        Category = "Toys"
	CategoryOther       Category = "Other"
)

// IsValid checks if the category is known
func (c Category) IsValid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryBooks, CategoryHome,
		CategorySports, CategoryBeauty, CategoryToys, CategoryOther:
		return true
	default:
		return false
	}
}

// Hold keeps Quantity units out of availability until ExpiresAt
type Hold struct {
	HoldID    string    `bson:"holdId" json:"holdId"`
	OwnerID   string    `bson:"ownerId" json:"ownerId"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// IsActive reports whether the hold still carries weight at now
func (h Hold) IsActive(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

// InventoryItem is the aggregate root of the reservation ledger. All
// availability arithmetic for one item happens here.
type InventoryItem struct {
	ID            string    `bson:"_id"`
	SKU           string    `bson:"sku"`
	Name          string    `bson:"name"`
	Description   string    `bson:"description,omitempty"`
	Category      Category  `bson:"category"`
	UnitPrice     float64   `bson:"unitPrice"`
	Currency      string    `bson:"currency"`
	TotalQuantity int       `bson:"totalQuantity"`
	Holds         []Hold    `bson:"holds"`
	IsActive      bool      `bson:"isActive"`
	Version       int64     `bson:"version"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-"`
}

// ItemDetails are the display and pricing attributes of a new item
type ItemDetails struct {
	SKU         string
	Name        string
	Description string
	Category    Category
	UnitPrice   float64
	Currency    string
}

// NewInventoryItem creates an active item holding initialQuantity units
func NewInventoryItem(id string, details ItemDetails, initialQuantity int, now time.Time) (*InventoryItem, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(details.Name) == "" || details.UnitPrice < 0 {
		return nil, ErrInvalidItem
	}
	if initialQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if details.Category == "" {
		details.Category = CategoryOther
	}
	if !details.Category.IsValid() {
		return nil, ErrInvalidItem
	}
	if details.Currency == "" {
		details.Currency = "USD"
	}

	item := &InventoryItem{
		ID:            id,
		SKU:           details.SKU,
		Name:          details.Name,
		Description:   details.Description,
		Category:      details.Category,
		UnitPrice:     details.UnitPrice,
		Currency:      details.Currency,
		TotalQuantity: initialQuantity,
		Holds:         make([]Hold, 0),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	item.addDomainEvent(&ItemCreatedEvent{
		ItemID:        id,
		SKU:           details.SKU,
		Name:          details.Name,
		UnitPrice:     details.UnitPrice,
		Currency:      details.Currency,
		TotalQuantity: initialQuantity,
		CreatedAt:     now,
	})

	return item, nil
}

// AvailableQuantity is total minus the quantity of holds active at now,
// floored at zero. It has no side effects.
func (i *InventoryItem) AvailableQuantity(now time.Time) int {
	available := i.TotalQuantity - i.ReservedQuantity(now)
	if available < 0 {
		return 0
	}
	return available
}

// ReservedQuantity sums the holds active at now
func (i *InventoryItem) ReservedQuantity(now time.Time) int {
	reserved := 0
	for _, h := range i.Holds {
		if h.IsActive(now) {
			reserved += h.Quantity
		}
	}
	return reserved
}

// ActiveHolds returns a copy of the holds active at now
func (i *InventoryItem) ActiveHolds(now time.Time) []Hold {
	active := make([]Hold, 0, len(i.Holds))
	for _, h := range i.Holds {
		if h.IsActive(now) {
			active = append(active, h)
		}
	}
	return active
}

// FindActiveHold looks up a hold that is active at now
func (i *InventoryItem) FindActiveHold(holdID string, now time.Time) (Hold, bool) {
	for _, h := range i.Holds {
		if h.HoldID == holdID && h.IsActive(now) {
			return h, true
		}
	}
	return Hold{}, false
}

// HasExpiredHolds reports whether any stored hold has expired at now
func (i *InventoryItem) HasExpiredHolds(now time.Time) bool {
	for _, h := range i.Holds {
		if !h.IsActive(now) {
			return true
		}
	}
	return false
}

// TryReserve places a hold of quantity units for ownerID. On
// ErrInsufficientStock the active holds and total are left untouched.
func (i *InventoryItem) TryReserve(holdID, ownerID string, quantity int, now time.Time, ttl time.Duration) (*Hold, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}

	i.SweepExpired(now)

	if _, exists := i.FindActiveHold(holdID, now); exists {
		return nil, ErrDuplicateHold
	}
	if i.AvailableQuantity(now) < quantity {
		return nil, ErrInsufficientStock
	}

	hold := Hold{
		HoldID:    holdID,
		OwnerID:   ownerID,
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	i.Holds = append(i.Holds, hold)
	i.UpdatedAt = now

	i.addDomainEvent(&HoldPlacedEvent{HoldChange: i.holdChange(hold, now), PlacedAt: now})
	return &hold, nil
}

// Release drops an active hold and returns its quantity. Releasing an
// unknown or expired hold returns (0, false) and changes nothing else.
func (i *InventoryItem) Release(holdID string, now time.Time) (int, bool) {
	i.SweepExpired(now)

	hold, ok := i.removeHold(holdID)
	if !ok {
		return 0, false
	}
	i.UpdatedAt = now

	i.addDomainEvent(&HoldReleasedEvent{HoldChange: i.holdChange(hold, now), ReleasedAt: now})
	return hold.Quantity, true
}

// Finalize converts an active hold into a sale: the hold is removed and the
// total decremented by its quantity.
func (i *InventoryItem) Finalize(holdID string, now time.Time) (*Hold, error) {
	i.SweepExpired(now)

	hold, ok := i.removeHold(holdID)
	if !ok {
		return nil, ErrHoldNotFound
	}
	i.TotalQuantity -= hold.Quantity
	i.UpdatedAt = now

	i.addDomainEvent(&HoldFinalizedEvent{HoldChange: i.holdChange(hold, now), FinalizedAt: now})
	return &hold, nil
}

// SweepExpired purges holds with expiresAt <= now and returns them
func (i *InventoryItem) SweepExpired(now time.Time) []Hold {
	var expired []Hold
	kept := i.Holds[:0]
	for _, h := range i.Holds {
		if h.IsActive(now) {
			kept = append(kept, h)
		} else {
			expired = append(expired, h)
		}
	}
	i.Holds = kept

	for _, h := range expired {
		i.addDomainEvent(&HoldExpiredEvent{HoldChange: i.holdChange(h, now), ExpiredAt: now})
	}
	if len(expired) > 0 {
		i.UpdatedAt = now
	}
	return expired
}

// ReceiveStock adds quantity units to the total
func (i *InventoryItem) ReceiveStock(quantity int, now time.Time) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	i.SweepExpired(now)
	i.TotalQuantity += quantity
	i.UpdatedAt = now

	i.addDomainEvent(&StockReceivedEvent{
		ItemID:        i.ID,
		Quantity:      quantity,
		TotalQuantity: i.TotalQuantity,
		ReceivedAt:    now,
	})
	return nil
}

func (i *InventoryItem) removeHold(holdID string) (Hold, bool) {
	for idx, h := range i.Holds {
		if h.HoldID == holdID {
			i.Holds = append(i.Holds[:idx], i.Holds[idx+1:]...)
			return h, true
		}
	}
	return Hold{}, false
}

func (i *InventoryItem) holdChange(h Hold, now time.Time) HoldChange {
	return HoldChange{
		ItemID:            i.ID,
		HoldID:            h.HoldID,
		OwnerID:           h.OwnerID,
		Quantity:          h.Quantity,
		ExpiresAt:         h.ExpiresAt,
		TotalQuantity:     i.TotalQuantity,
		AvailableQuantity: i.AvailableQuantity(now),
	}
}

func (i *InventoryItem) addDomainEvent(event DomainEvent) {
	i.DomainEvents = append(i.DomainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (i *InventoryItem) GetDomainEvents() []DomainEvent {
	return i.DomainEvents
}

// ClearDomainEvents clears all pending domain events
func (i *InventoryItem) ClearDomainEvents() {
	i.DomainEvents = nil
}
