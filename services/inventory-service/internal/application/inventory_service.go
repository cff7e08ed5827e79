package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/clock"
	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/resilience"
)

// Facade messages
const (
	MsgItemNotFound   = "Item not found"
	MsgHoldNotFound   = "Hold not found"
	MsgReserved       = "Stock reserved successfully"
	MsgReleased       = "Stock reservation released successfully"
	MsgFinalized      = "Stock reservation finalized successfully"
	MsgItemRetrieved  = "Item retrieved successfully"
	MsgItemCreated    = "Item created successfully"
	MsgStockReceived  = "Stock received successfully"
	msgAvailable      = "%d units available"
	msgOnlyAvailable  = "Only %d units available, requested %d"
	msgInsufficient   = "Insufficient stock. Available: %d, Requested: %d"
	storageDependency = "inventory storage"
)

// InventoryApplicationService is the inventory facade. Business outcomes
// (unknown item, unknown hold, insufficient stock) come back in-band in the
// result; the error return is reserved for malformed input and storage faults.
type InventoryApplicationService struct {
	repo      domain.InventoryRepository
	locker    *ItemLocker
	clock     clock.Clock
	holdTTL   time.Duration
	retry     *resilience.RetryConfig
	newHoldID func() string
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// Option configures an InventoryApplicationService
type Option func(*InventoryApplicationService)

// WithHoldTTL overrides domain.DefaultHoldTTL
func WithHoldTTL(d time.Duration) Option {
	return func(s *InventoryApplicationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithConflictRetry overrides how version conflicts are retried
func WithConflictRetry(config *resilience.RetryConfig) Option {
	return func(s *InventoryApplicationService) {
		if config != nil {
			s.retry = config
		}
	}
}

// WithMetrics records hold and conflict metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *InventoryApplicationService) {
		s.metrics = m
	}
}

// NewInventoryApplicationService creates a new InventoryApplicationService
func NewInventoryApplicationService(repo domain.InventoryRepository, clk clock.Clock, logger *logging.Logger, opts ...Option) *InventoryApplicationService {
	if logger == nil {
		logger = logging.NewNop()
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.InitialDelay = 5 * time.Millisecond
	retry.MaxDelay = 100 * time.Millisecond
	retry.RetryableErrors = func(err error) bool {
		return errors.Is(err, domain.ErrVersionConflict)
	}

	s := &InventoryApplicationService{
		repo:      repo,
		locker:    NewItemLocker(),
		clock:     clk,
		holdTTL:   domain.DefaultHoldTTL,
		retry:     retry,
		newHoldID: uuid.NewString,
		logger:    logger.WithComponent("inventory-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HoldTTL is the lifetime given to new holds
func (s *InventoryApplicationService) HoldTTL() time.Duration {
	return s.holdTTL
}

// CreateItem seeds a new item
func (s *InventoryApplicationService) CreateItem(ctx context.Context, cmd CreateItemCommand) (*ItemResult, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		itemID = uuid.NewString()
	}

	now := s.clock.Now()
	item, err := domain.NewInventoryItem(itemID, domain.ItemDetails{
		SKU:         cmd.SKU,
		Name:        cmd.Name,
		Description: cmd.Description,
		Category:    domain.Category(cmd.Category),
		UnitPrice:   cmd.UnitPrice,
		Currency:    cmd.Currency,
	}, cmd.InitialQuantity, now)
	if err != nil {
		return nil, apperrors.ErrValidation(err.Error())
	}

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, domain.ErrItemExists) {
			return nil, apperrors.ErrConflict(fmt.Sprintf("item %s already exists", itemID))
		}
		return nil, s.storageFault(ctx, "create item", err)
	}

	s.logger.Audit(ctx, "create", "item", itemID, "", map[string]any{"quantity": cmd.InitialQuantity})
	return &ItemResult{Success: true, Item: ToItemDTO(item, now), Message: MsgItemCreated}, nil
}

// GetItem reads an item with availability computed at now
func (s *InventoryApplicationService) GetItem(ctx context.Context, query GetItemQuery) (*ItemResult, error) {
	if err := requireID("itemId", query.ItemID); err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, query.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return &ItemResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
		}
		return nil, s.storageFault(ctx, "get item", err)
	}

	return &ItemResult{Success: true, Item: ToItemDTO(item, s.clock.Now()), Message: MsgItemRetrieved}, nil
}

// CheckStock reports whether quantity units are available. It never writes.
func (s *InventoryApplicationService) CheckStock(ctx context.Context, query CheckStockQuery) (*CheckStockResult, error) {
	if err := requireID("itemId", query.ItemID); err != nil {
		return nil, err
	}
	if err := requireQuantity(query.Quantity); err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, query.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return &CheckStockResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
		}
		return nil, s.storageFault(ctx, "check stock", err)
	}

	available := item.AvailableQuantity(s.clock.Now())
	if available < query.Quantity {
		return &CheckStockResult{
			CurrentStock: available,
			Message:      fmt.Sprintf(msgOnlyAvailable, available, query.Quantity),
			Code:         apperrors.CodeInsufficientStock,
		}, nil
	}
	return &CheckStockResult{
		Available:    true,
		CurrentStock: available,
		Message:      fmt.Sprintf(msgAvailable, available),
	}, nil
}

// ReserveStock places a hold of cmd.Quantity units for cmd.OwnerID
func (s *InventoryApplicationService) ReserveStock(ctx context.Context, cmd ReserveStockCommand) (*ReserveStockResult, error) {
	if err := requireID("itemId", cmd.ItemID); err != nil {
		return nil, err
	}
	if err := requireID("ownerId", cmd.OwnerID); err != nil {
		return nil, err
	}
	if err := requireQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	holdID := strings.TrimSpace(cmd.HoldID)
	if holdID == "" {
		holdID = s.newHoldID()
	}

	var (
		hold      *domain.Hold
		available int
	)
	_, err := s.mutate(ctx, cmd.ItemID, func(item *domain.InventoryItem, now time.Time) (bool, error) {
		h, err := item.TryReserve(holdID, cmd.OwnerID, cmd.Quantity, now, s.holdTTL)
		if err != nil {
			available = item.AvailableQuantity(now)
			return false, err
		}
		hold = h
		return true, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrItemNotFound):
		return &ReserveStockResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordHold("rejected", 0)
		return &ReserveStockResult{
			Message: fmt.Sprintf(msgInsufficient, available, cmd.Quantity),
			Code:    apperrors.CodeInsufficientStock,
		}, nil
	case errors.Is(err, domain.ErrDuplicateHold):
		return nil, apperrors.ErrValidation(fmt.Sprintf("hold %s is already active", holdID)).
			WithDetail("holdId", holdID)
	default:
		return nil, s.storageFault(ctx, "reserve stock", err)
	}

	s.metrics.RecordHold("placed", hold.Quantity)
	s.logger.Audit(ctx, "reserve", "hold", hold.HoldID, cmd.OwnerID, map[string]any{
		"itemId":   cmd.ItemID,
		"quantity": hold.Quantity,
	})

	expiresAt := hold.ExpiresAt
	return &ReserveStockResult{
		Success:          true,
		HoldID:           hold.HoldID,
		ReservedQuantity: hold.Quantity,
		ExpiresAt:        &expiresAt,
		Message:          MsgReserved,
	}, nil
}

// ReleaseStock gives an active hold back. Releasing an unknown, expired or
// already released hold reports HoldNotFound and changes nothing.
func (s *InventoryApplicationService) ReleaseStock(ctx context.Context, cmd ReleaseStockCommand) (*ReleaseStockResult, error) {
	if err := requireID("holdId", cmd.HoldID); err != nil {
		return nil, err
	}

	itemID, result, err := s.resolveItem(ctx, cmd.HoldID, cmd.ItemID)
	if err != nil || result != nil {
		if result != nil {
			return &ReleaseStockResult{Message: result.Message, Code: result.Code}, nil
		}
		return nil, err
	}

	var released int
	_, err = s.mutate(ctx, itemID, func(item *domain.InventoryItem, now time.Time) (bool, error) {
		q, ok := item.Release(cmd.HoldID, now)
		if !ok {
			return false, domain.ErrHoldNotFound
		}
		released = q
		return true, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrHoldNotFound):
		return &ReleaseStockResult{Message: MsgHoldNotFound, Code: apperrors.CodeHoldNotFound}, nil
	case errors.Is(err, domain.ErrItemNotFound):
		return &ReleaseStockResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
	default:
		return nil, s.storageFault(ctx, "release stock", err)
	}

	s.metrics.RecordHold("released", released)
	s.logger.Audit(ctx, "release", "hold", cmd.HoldID, "", map[string]any{
		"itemId":   itemID,
		"quantity": released,
	})
	return &ReleaseStockResult{Success: true, ReleasedQuantity: released, Message: MsgReleased}, nil
}

// FinalizeStock turns an active hold into a sale
func (s *InventoryApplicationService) FinalizeStock(ctx context.Context, cmd FinalizeStockCommand) (*FinalizeStockResult, error) {
	if err := requireID("holdId", cmd.HoldID); err != nil {
		return nil, err
	}

	itemID, result, err := s.resolveItem(ctx, cmd.HoldID, cmd.ItemID)
	if err != nil || result != nil {
		if result != nil {
			return &FinalizeStockResult{Message: result.Message, Code: result.Code}, nil
		}
		return nil, err
	}

	var finalized int
	item, err := s.mutate(ctx, itemID, func(item *domain.InventoryItem, now time.Time) (bool, error) {
		hold, err := item.Finalize(cmd.HoldID, now)
		if err != nil {
			return false, err
		}
		finalized = hold.Quantity
		return true, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrHoldNotFound):
		return &FinalizeStockResult{Message: MsgHoldNotFound, Code: apperrors.CodeHoldNotFound}, nil
	case errors.Is(err, domain.ErrItemNotFound):
		return &FinalizeStockResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
	default:
		return nil, s.storageFault(ctx, "finalize stock", err)
	}

	s.metrics.RecordHold("finalized", finalized)
	s.logger.Audit(ctx, "finalize", "hold", cmd.HoldID, "", map[string]any{
		"itemId":   itemID,
		"quantity": finalized,
	})
	return &FinalizeStockResult{
		Success:           true,
		FinalizedQuantity: finalized,
		RemainingQuantity: item.TotalQuantity,
		Message:           MsgFinalized,
	}, nil
}

// ReceiveStock adds stock to an item
func (s *InventoryApplicationService) ReceiveStock(ctx context.Context, cmd ReceiveStockCommand) (*ItemResult, error) {
	if err := requireID("itemId", cmd.ItemID); err != nil {
		return nil, err
	}
	if err := requireQuantity(cmd.Quantity); err != nil {
		return nil, err
	}

	item, err := s.mutate(ctx, cmd.ItemID, func(item *domain.InventoryItem, now time.Time) (bool, error) {
		return true, item.ReceiveStock(cmd.Quantity, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return &ItemResult{Message: MsgItemNotFound, Code: apperrors.CodeItemNotFound}, nil
		}
		return nil, s.storageFault(ctx, "receive stock", err)
	}

	s.logger.Audit(ctx, "receive", "item", cmd.ItemID, "", map[string]any{"quantity": cmd.Quantity})
	return &ItemResult{Success: true, Item: ToItemDTO(item, s.clock.Now()), Message: MsgStockReceived}, nil
}

// PurgeExpiredHolds sweeps one item and returns how many holds it dropped
func (s *InventoryApplicationService) PurgeExpiredHolds(ctx context.Context, itemID string) (int, error) {
	var purged int
	_, err := s.mutate(ctx, itemID, func(item *domain.InventoryItem, now time.Time) (bool, error) {
		purged = len(item.SweepExpired(now))
		return purged > 0, nil
	})
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.metrics.RecordHold("expired", purged)
	}
	return purged, nil
}

// Ping checks the backing store
func (s *InventoryApplicationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// mutate loads the item under its lock, applies fn and saves when fn
// reports a change. Version conflicts from other replicas reload and
// re-apply fn.
func (s *InventoryApplicationService) mutate(ctx context.Context, itemID string, fn func(item *domain.InventoryItem, now time.Time) (bool, error)) (*domain.InventoryItem, error) {
	unlock := s.locker.Lock(itemID)
	defer unlock()

	return resilience.RetryWithResult(ctx, s.retry, func() (*domain.InventoryItem, error) {
		item, err := s.repo.FindByID(ctx, itemID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(item, s.clock.Now())
		if err != nil || !changed {
			return item, err
		}

		if err := s.repo.Save(ctx, item); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				s.metrics.RecordVersionConflict()
				s.logger.Warn("Version conflict, retrying", "itemId", itemID)
			}
			return nil, err
		}
		return item, nil
	})
}

// resolveItem finds the item owning holdID. A non-nil result is an in-band
// outcome to hand back to the caller.
func (s *InventoryApplicationService) resolveItem(ctx context.Context, holdID, itemID string) (string, *ItemResult, error) {
	if itemID = strings.TrimSpace(itemID); itemID != "" {
		return itemID, nil, nil
	}

	item, err := s.repo.FindByHoldID(ctx, holdID)
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) {
			return "", &ItemResult{Message: MsgHoldNotFound, Code: apperrors.CodeHoldNotFound}, nil
		}
		return "", nil, s.storageFault(ctx, "find hold", err)
	}
	return item.ID, nil, nil
}

func (s *InventoryApplicationService) storageFault(ctx context.Context, operation string, err error) error {
	s.logger.WithContext(ctx).WithError(err).Error("Storage operation failed", "operation", operation)
	return apperrors.ErrServiceUnavailable(storageDependency).Wrap(err)
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.ErrValidationWithFields(field+" is required", map[string]string{field: "required"})
	}
	return nil
}

func requireQuantity(quantity int) error {
	if quantity < 1 {
		return apperrors.ErrValidationWithFields("quantity must be at least 1", map[string]string{"quantity": "min=1"})
	}
	return nil
}
