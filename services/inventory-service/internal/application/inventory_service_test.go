package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	testinfra "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/testing"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const ttl = 15 * time.Minute

func newService(t *testing.T, qty int) (*InventoryApplicationService, *fakeInventoryRepo, *clock.Manual) {
	t.Helper()

	repo := newFakeInventoryRepo()
	clk := clock.NewManual(t0)
	svc := NewInventoryApplicationService(repo, clk, logging.NewNop(), WithHoldTTL(ttl))

	_, err := svc.CreateItem(context.Background(), CreateItemCommand{
		ItemID:          "item-1",
		Name:            "Widget",
		Category:        "Electronics",
		UnitPrice:       20,
		InitialQuantity: qty,
	})
	require.NoError(t, err)
	return svc, repo, clk
}

func requireAppError(t *testing.T, err error, code string, status int) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.HTTPStatus)
}

func TestCheckStock(t *testing.T) {
	svc, _, _ := newService(t, 10)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     CheckStockQuery
		available bool
		stock     int
		message   string
		code      string
	}{
		{"enough stock", CheckStockQuery{ItemID: "item-1", Quantity: 3}, true, 10, "10 units available", ""},
		{"exactly all stock", CheckStockQuery{ItemID: "item-1", Quantity: 10}, true, 10, "10 units available", ""},
		{"too much", CheckStockQuery{ItemID: "item-1", Quantity: 11}, false, 10, "Only 10 units available, requested 11", apperrors.CodeInsufficientStock},
		{"unknown item", CheckStockQuery{ItemID: "missing", Quantity: 1}, false, 0, "Item not found", apperrors.CodeItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.CheckStock(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.available, result.Available)
			assert.Equal(t, tt.stock, result.CurrentStock)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, tt.code, result.Code)
		})
	}
}

func TestCheckStock_Validation(t *testing.T) {
	svc, _, _ := newService(t, 10)

	_, err := svc.CheckStock(context.Background(), CheckStockQuery{ItemID: "item-1", Quantity: 0})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)

	_, err = svc.CheckStock(context.Background(), CheckStockQuery{ItemID: " ", Quantity: 1})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)
}

func TestReserveStock_Success(t *testing.T) {
	svc, repo, _ := newService(t, 10)

	result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.HoldID)
	assert.Equal(t, 3, result.ReservedQuantity)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, t0.Add(ttl), *result.ExpiresAt)
	assert.Equal(t, MsgReserved, result.Message)

	stored := repo.stored("item-1")
	assert.Equal(t, 7, stored.AvailableQuantity(t0))
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, []string{"inventory.item.created", "inventory.hold.placed"}, repo.eventTypes())
}

func TestReserveStock_UsesGivenHoldID(t *testing.T) {
	svc, _, _ := newService(t, 10)

	result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 1, OwnerID: "user-1", HoldID: "hold-1"})
	require.NoError(t, err)
	assert.Equal(t, "hold-1", result.HoldID)

	_, err = svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 1, OwnerID: "user-1", HoldID: "hold-1"})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)
}

func TestReserveStock_Insufficient(t *testing.T) {
	svc, repo, _ := newService(t, 10)

	result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 11, OwnerID: "user-1"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "Insufficient stock. Available: 10, Requested: 11", result.Message)
	assert.Equal(t, apperrors.CodeInsufficientStock, result.Code)
	assert.Nil(t, result.ExpiresAt)
	assert.Equal(t, 0, repo.saves)
}

func TestReserveStock_ItemNotFound(t *testing.T) {
	svc, _, _ := newService(t, 10)

	result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "missing", Quantity: 1, OwnerID: "user-1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, MsgItemNotFound, result.Message)
}

func TestReserveStock_StorageFault(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	repo.findErr = errors.New("connection refused")

	_, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 1, OwnerID: "user-1"})
	requireAppError(t, err, apperrors.CodeServiceUnavailable, http.StatusServiceUnavailable)
}

func TestReserveStock_RetriesVersionConflict(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	repo.conflictsLeft = 2

	result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{ItemID: "item-1", Quantity: 4, OwnerID: "user-1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 6, repo.stored("item-1").AvailableQuantity(t0))
}

func TestReserveStock_ConcurrentNeverOversells(t *testing.T) {
	svc, repo, _ := newService(t, 10)

	var succeeded, rejected atomic.Int32
	testinfra.Concurrently(25, func(i int) {
		result, err := svc.ReserveStock(context.Background(), ReserveStockCommand{
			ItemID:   "item-1",
			Quantity: 1,
			OwnerID:  fmt.Sprintf("user-%d", i),
		})
		if err != nil {
			return
		}
		if result.Success {
			succeeded.Add(1)
		} else {
			rejected.Add(1)
		}
	})

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(15), rejected.Load())

	stored := repo.stored("item-1")
	assert.Equal(t, 0, stored.AvailableQuantity(t0))
	assert.Len(t, stored.Holds, 10)
	assert.Equal(t, 0, svc.locker.size())
}

func TestReleaseStock_Idempotent(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	ctx := context.Background()

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 4, OwnerID: "user-1"})
	require.NoError(t, err)

	first, err := svc.ReleaseStock(ctx, ReleaseStockCommand{HoldID: reserved.HoldID, ItemID: "item-1"})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 4, first.ReleasedQuantity)
	assert.Equal(t, MsgReleased, first.Message)

	second, err := svc.ReleaseStock(ctx, ReleaseStockCommand{HoldID: reserved.HoldID, ItemID: "item-1"})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, 0, second.ReleasedQuantity)
	assert.Equal(t, MsgHoldNotFound, second.Message)

	assert.Equal(t, 10, repo.stored("item-1").AvailableQuantity(t0))
}

func TestReleaseStock_ResolvesItemFromHold(t *testing.T) {
	svc, _, _ := newService(t, 10)
	ctx := context.Background()

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 2, OwnerID: "user-1"})
	require.NoError(t, err)

	result, err := svc.ReleaseStock(ctx, ReleaseStockCommand{HoldID: reserved.HoldID})
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = svc.ReleaseStock(ctx, ReleaseStockCommand{HoldID: "unknown"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, apperrors.CodeHoldNotFound, result.Code)
}

func TestReserveThenRelease_NetsZero(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	ctx := context.Background()
	before := repo.stored("item-1")

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"})
	require.NoError(t, err)
	_, err = svc.ReleaseStock(ctx, ReleaseStockCommand{HoldID: reserved.HoldID})
	require.NoError(t, err)

	after := repo.stored("item-1")
	assert.Equal(t, before.TotalQuantity, after.TotalQuantity)
	assert.Equal(t, before.AvailableQuantity(t0), after.AvailableQuantity(t0))
	assert.Empty(t, after.Holds)
}

func TestFinalizeStock(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	ctx := context.Background()

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"})
	require.NoError(t, err)

	result, err := svc.FinalizeStock(ctx, FinalizeStockCommand{HoldID: reserved.HoldID})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.FinalizedQuantity)
	assert.Equal(t, 7, result.RemainingQuantity)

	stored := repo.stored("item-1")
	assert.Equal(t, 7, stored.TotalQuantity)
	assert.Equal(t, 7, stored.AvailableQuantity(t0))
	assert.Empty(t, stored.Holds)

	again, err := svc.FinalizeStock(ctx, FinalizeStockCommand{HoldID: reserved.HoldID, ItemID: "item-1"})
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, MsgHoldNotFound, again.Message)
}

func TestFinalizeStock_ExpiredHold(t *testing.T) {
	svc, _, clk := newService(t, 10)
	ctx := context.Background()

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"})
	require.NoError(t, err)

	clk.Advance(ttl)
	result, err := svc.FinalizeStock(ctx, FinalizeStockCommand{HoldID: reserved.HoldID})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, apperrors.CodeHoldNotFound, result.Code)
}

func TestExpiry_AvailabilityRestoredAtTTL(t *testing.T) {
	svc, _, clk := newService(t, 10)
	ctx := context.Background()

	_, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 10, OwnerID: "user-1"})
	require.NoError(t, err)

	clk.Set(t0.Add(ttl - time.Nanosecond))
	check, err := svc.CheckStock(ctx, CheckStockQuery{ItemID: "item-1", Quantity: 1})
	require.NoError(t, err)
	assert.False(t, check.Available)

	clk.Set(t0.Add(ttl))
	check, err = svc.CheckStock(ctx, CheckStockQuery{ItemID: "item-1", Quantity: 10})
	require.NoError(t, err)
	assert.True(t, check.Available)
	assert.Equal(t, 10, check.CurrentStock)

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 10, OwnerID: "user-2"})
	require.NoError(t, err)
	assert.True(t, reserved.Success)
}

func TestCreateItem(t *testing.T) {
	svc, _, _ := newService(t, 10)
	ctx := context.Background()

	result, err := svc.CreateItem(ctx, CreateItemCommand{Name: "Book", UnitPrice: 12.5, InitialQuantity: 4})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Item.ID)
	assert.Equal(t, "Other", result.Item.Category)
	assert.Equal(t, "USD", result.Item.Currency)
	assert.Equal(t, 4, result.Item.AvailableQuantity)

	_, err = svc.CreateItem(ctx, CreateItemCommand{ItemID: "item-1", Name: "Dup", InitialQuantity: 1})
	requireAppError(t, err, apperrors.CodeConflict, http.StatusConflict)

	_, err = svc.CreateItem(ctx, CreateItemCommand{Name: "", InitialQuantity: 1})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)

	_, err = svc.CreateItem(ctx, CreateItemCommand{Name: "Bad", Category: "Weapons"})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)
}

func TestGetItem(t *testing.T) {
	svc, _, _ := newService(t, 10)
	ctx := context.Background()

	_, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 2, OwnerID: "user-1", HoldID: "hold-1"})
	require.NoError(t, err)

	result, err := svc.GetItem(ctx, GetItemQuery{ItemID: "item-1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 20.0, result.Item.UnitPrice)
	assert.Equal(t, 10, result.Item.TotalQuantity)
	assert.Equal(t, 8, result.Item.AvailableQuantity)
	assert.Equal(t, 2, result.Item.ReservedQuantity)
	require.Len(t, result.Item.ActiveHolds, 1)
	assert.Equal(t, "hold-1", result.Item.ActiveHolds[0].HoldID)

	missing, err := svc.GetItem(ctx, GetItemQuery{ItemID: "missing"})
	require.NoError(t, err)
	assert.False(t, missing.Success)
	assert.Nil(t, missing.Item)
	assert.Equal(t, MsgItemNotFound, missing.Message)
}

func TestReceiveStock(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	ctx := context.Background()

	result, err := svc.ReceiveStock(ctx, ReceiveStockCommand{ItemID: "item-1", Quantity: 5})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 15, result.Item.TotalQuantity)
	assert.Equal(t, 15, repo.stored("item-1").TotalQuantity)

	_, err = svc.ReceiveStock(ctx, ReceiveStockCommand{ItemID: "item-1", Quantity: -1})
	requireAppError(t, err, apperrors.CodeValidationError, http.StatusBadRequest)

	missing, err := svc.ReceiveStock(ctx, ReceiveStockCommand{ItemID: "missing", Quantity: 1})
	require.NoError(t, err)
	assert.False(t, missing.Success)
}

func TestSuccessfulPurchaseArithmetic(t *testing.T) {
	svc, repo, _ := newService(t, 10)
	ctx := context.Background()

	reserved, err := svc.ReserveStock(ctx, ReserveStockCommand{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"})
	require.NoError(t, err)

	item, err := svc.GetItem(ctx, GetItemQuery{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, 60.0, item.Item.UnitPrice*float64(reserved.ReservedQuantity))

	_, err = svc.FinalizeStock(ctx, FinalizeStockCommand{HoldID: reserved.HoldID, ItemID: "item-1"})
	require.NoError(t, err)

	stored := repo.stored("item-1")
	assert.Equal(t, 7, stored.TotalQuantity)
	assert.Empty(t, stored.Holds)
	assert.NotContains(t, repo.eventTypes(), "inventory.hold.expired")
}
