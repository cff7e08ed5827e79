package application

import (
	"context"
	"sync"
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
)

// fakeInventoryRepo stores copies so callers only see state through
// FindByID, like a real store. Save enforces the version check.
type fakeInventoryRepo struct {
	mu     sync.Mutex
	items  map[string]*domain.InventoryItem
	events []domain.DomainEvent

	saveErr       error
	findErr       error
	conflictsLeft int
	saves         int
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: make(map[string]*domain.InventoryItem)}
}

func cloneItem(item *domain.InventoryItem) *domain.InventoryItem {
	c := *item
	c.Holds = append(make([]domain.Hold, 0, len(item.Holds)), item.Holds...)
	c.DomainEvents = nil
	return &c
}

func (f *fakeInventoryRepo) Create(ctx context.Context, item *domain.InventoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.items[item.ID]; ok {
		return domain.ErrItemExists
	}
	f.items[item.ID] = cloneItem(item)
	f.events = append(f.events, item.GetDomainEvents()...)
	item.ClearDomainEvents()
	return nil
}

func (f *fakeInventoryRepo) Save(ctx context.Context, item *domain.InventoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return domain.ErrVersionConflict
	}
	stored, ok := f.items[item.ID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if stored.Version != item.Version {
		return domain.ErrVersionConflict
	}

	item.Version++
	f.items[item.ID] = cloneItem(item)
	f.events = append(f.events, item.GetDomainEvents()...)
	item.ClearDomainEvents()
	f.saves++
	return nil
}

func (f *fakeInventoryRepo) FindByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (f *fakeInventoryRepo) FindByHoldID(ctx context.Context, holdID string) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, item := range f.items {
		for _, h := range item.Holds {
			if h.HoldID == holdID {
				return cloneItem(item), nil
			}
		}
	}
	return nil, domain.ErrHoldNotFound
}

func (f *fakeInventoryRepo) FindIDsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var ids []string
	for id, item := range f.items {
		if item.HasExpiredHolds(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeInventoryRepo) Ping(ctx context.Context) error {
	return f.findErr
}

// stored returns a copy of what the store holds for id
func (f *fakeInventoryRepo) stored(id string) *domain.InventoryItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneItem(f.items[id])
}

func (f *fakeInventoryRepo) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.events))
	for i, e := range f.events {
		types[i] = e.EventType()
	}
	return types
}
