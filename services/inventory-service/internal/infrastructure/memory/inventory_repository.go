package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
)

// InventoryRepository keeps items in process memory. It backs local runs
// with STORAGE_BACKEND=memory and the HTTP level tests. Events are recorded
// but never published.
type InventoryRepository struct {
	mu     sync.RWMutex
	items  map[string]*domain.InventoryItem
	events []domain.DomainEvent
}

// NewInventoryRepository creates an empty repository
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{items: make(map[string]*domain.InventoryItem)}
}

// Callers only ever see copies, so a mutation that is never saved does not
// leak into the store.
func clone(item *domain.InventoryItem) *domain.InventoryItem {
	c := *item
	c.Holds = append(make([]domain.Hold, 0, len(item.Holds)), item.Holds...)
	c.DomainEvents = nil
	return &c
}

// Create inserts a new item
func (r *InventoryRepository) Create(ctx context.Context, item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return domain.ErrItemExists
	}
	r.items[item.ID] = clone(item)
	r.events = append(r.events, item.GetDomainEvents()...)
	item.ClearDomainEvents()
	return nil
}

// Save replaces the stored item when the versions agree
func (r *InventoryRepository) Save(ctx context.Context, item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[item.ID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if stored.Version != item.Version {
		return domain.ErrVersionConflict
	}

	for id, other := range r.items {
		if id == item.ID {
			continue
		}
		for _, h := range other.Holds {
			for _, mine := range item.Holds {
				if h.HoldID == mine.HoldID {
					return domain.ErrDuplicateHold
				}
			}
		}
	}

	next := clone(item)
	next.Version++
	r.items[item.ID] = next

	r.events = append(r.events, item.GetDomainEvents()...)
	item.Version = next.Version
	item.ClearDomainEvents()
	return nil
}

// FindByID returns a copy of the item
func (r *InventoryRepository) FindByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return clone(item), nil
}

// FindByHoldID returns a copy of the item storing holdID
func (r *InventoryRepository) FindByHoldID(ctx context.Context, holdID string) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range r.items {
		for _, h := range item.Holds {
			if h.HoldID == holdID {
				return clone(item), nil
			}
		}
	}
	return nil, domain.ErrHoldNotFound
}

// FindIDsWithExpiredHolds lists up to limit items with a stored hold past
// its expiry, in id order
func (r *InventoryRepository) FindIDsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, item := range r.items {
		if item.HasExpiredHolds(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Ping always succeeds
func (r *InventoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Events returns the types of every event committed so far, oldest first
func (r *InventoryRepository) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType()
	}
	return types
}

var _ domain.InventoryRepository = (*InventoryRepository)(nil)
