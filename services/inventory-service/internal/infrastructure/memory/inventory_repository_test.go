package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newItem(t *testing.T, id string, qty int) *domain.InventoryItem {
	t.Helper()
	item, err := domain.NewInventoryItem(id, domain.ItemDetails{Name: "Widget", UnitPrice: 5}, qty, t0)
	require.NoError(t, err)
	return item
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()

	require.NoError(t, repo.Create(ctx, newItem(t, "item-1", 4)))
	assert.ErrorIs(t, repo.Create(ctx, newItem(t, "item-1", 4)), domain.ErrItemExists)

	found, err := repo.FindByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 4, found.TotalQuantity)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestSave_VersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.Create(ctx, newItem(t, "item-1", 4)))

	first, _ := repo.FindByID(ctx, "item-1")
	second, _ := repo.FindByID(ctx, "item-1")

	_, err := first.TryReserve("hold-1", "user-1", 2, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, int64(1), first.Version)
	assert.Empty(t, first.GetDomainEvents())

	_, err = second.TryReserve("hold-2", "user-2", 2, t0, time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrVersionConflict)

	assert.Equal(t, []string{"inventory.item.created", "inventory.hold.placed"}, repo.Events())
}

func TestUnsavedMutationDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.Create(ctx, newItem(t, "item-1", 4)))

	item, _ := repo.FindByID(ctx, "item-1")
	_, err := item.TryReserve("hold-1", "user-1", 4, t0, time.Minute)
	require.NoError(t, err)

	stored, _ := repo.FindByID(ctx, "item-1")
	assert.Equal(t, 4, stored.AvailableQuantity(t0))
}

func TestFindByHoldIDAndExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewInventoryRepository()
	require.NoError(t, repo.Create(ctx, newItem(t, "item-1", 4)))
	require.NoError(t, repo.Create(ctx, newItem(t, "item-2", 4)))

	item, _ := repo.FindByID(ctx, "item-2")
	_, err := item.TryReserve("hold-9", "user-1", 1, t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, item))

	found, err := repo.FindByHoldID(ctx, "hold-9")
	require.NoError(t, err)
	assert.Equal(t, "item-2", found.ID)

	_, err = repo.FindByHoldID(ctx, "hold-0")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	ids, err := repo.FindIDsWithExpiredHolds(ctx, t0.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.FindIDsWithExpiredHolds(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-2"}, ids)
}
