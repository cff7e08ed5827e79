package domain

import (
	"context"
	"time"
)

// InventoryRepository persists items together with their pending domain
// events. Implementations write the item and its outbox rows atomically.
type InventoryRepository interface {
	// Create inserts a new item; ErrItemExists if the id is taken
	Create(ctx context.Context, item *InventoryItem) error

	// Save writes item if the stored version still equals item.Version and
	// bumps the version; ErrVersionConflict otherwise
	Save(ctx context.Context, item *InventoryItem) error

	// FindByID returns ErrItemNotFound when no item has id
	FindByID(ctx context.Context, id string) (*InventoryItem, error)

	// FindByHoldID returns the item storing holdID; ErrHoldNotFound if none
	FindByHoldID(ctx context.Context, holdID string) (*InventoryItem, error)

	// FindIDsWithExpiredHolds lists items holding a hold with expiresAt <= now
	FindIDsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Ping checks the backing store is reachable for readiness
	Ping(ctx context.Context) error
}
