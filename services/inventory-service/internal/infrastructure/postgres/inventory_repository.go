package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/infrastructure/events"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/metrics"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	outboxPg "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox/postgres"
	sharedPg "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/postgres"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the inventory schema, outbox table included
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	return sharedPg.Migrate(ctx, pool, migrations)
}

const itemColumns = `id, sku, name, description, category, unit_price, currency, total_quantity, is_active, version, created_at, updated_at`

// InventoryRepository stores items in inventory_items and their holds in
// inventory_holds. Saves rewrite the hold set of the item under the
// version check, in one transaction with the outbox rows.
type InventoryRepository struct {
	pool         *pgxpool.Pool
	outboxRepo   *outboxPg.OutboxRepository
	eventFactory *cloudevents.EventFactory
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// NewInventoryRepository creates the repository. Run Migrate first.
func NewInventoryRepository(pool *pgxpool.Pool, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) *InventoryRepository {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &InventoryRepository{
		pool:         pool,
		outboxRepo:   outboxPg.NewOutboxRepository(pool),
		eventFactory: eventFactory,
		metrics:      m,
		logger:       logger,
	}
}

func (r *InventoryRepository) observe(ctx context.Context, operation string, start time.Time, err error) {
	duration := time.Since(start)
	r.metrics.RecordStorageOperation("postgres", "inventory_items", operation, err == nil, duration)
	r.logger.DatabaseQuery(ctx, "inventory_items", operation, duration, err == nil)
}

// Create inserts a new item and its creation events
func (r *InventoryRepository) Create(ctx context.Context, item *domain.InventoryItem) (err error) {
	defer func(start time.Time) { r.observe(ctx, "create", start, err) }(time.Now())

	err = sharedPg.WithTx(ctx, r.pool, func(txCtx context.Context) error {
		q := sharedPg.Conn(txCtx, r.pool)
		_, err := q.Exec(txCtx, `
INSERT INTO inventory_items (`+itemColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			item.ID, item.SKU, item.Name, item.Description, string(item.Category), item.UnitPrice,
			item.Currency, item.TotalQuantity, item.IsActive, item.Version, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			if sharedPg.IsUniqueViolation(err) {
				return domain.ErrItemExists
			}
			return fmt.Errorf("failed to insert inventory item: %w", err)
		}

		if err := insertHolds(txCtx, q, item); err != nil {
			return err
		}
		return r.saveOutbox(txCtx, item)
	})
	if err != nil {
		return err
	}

	item.ClearDomainEvents()
	return nil
}

// Save writes item when the stored version still matches and bumps
// item.Version
func (r *InventoryRepository) Save(ctx context.Context, item *domain.InventoryItem) (err error) {
	defer func(start time.Time) { r.observe(ctx, "save", start, err) }(time.Now())

	expected := item.Version
	err = sharedPg.WithTx(ctx, r.pool, func(txCtx context.Context) error {
		q := sharedPg.Conn(txCtx, r.pool)

		// 1. Version-checked update; the row lock serializes writers
		tag, err := q.Exec(txCtx, `
UPDATE inventory_items
SET sku = $3, name = $4, description = $5, category = $6, unit_price = $7, currency = $8,
    total_quantity = $9, is_active = $10, updated_at = $11, version = version + 1
WHERE id = $1 AND version = $2`,
			item.ID, expected, item.SKU, item.Name, item.Description, string(item.Category),
			item.UnitPrice, item.Currency, item.TotalQuantity, item.IsActive, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save inventory item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}

		// 2. Replace the hold set
		if _, err := q.Exec(txCtx, `DELETE FROM inventory_holds WHERE item_id = $1`, item.ID); err != nil {
			return fmt.Errorf("failed to clear holds: %w", err)
		}
		if err := insertHolds(txCtx, q, item); err != nil {
			return err
		}

		// 3. Save domain events to outbox
		return r.saveOutbox(txCtx, item)
	})
	if err != nil {
		return err
	}

	item.Version = expected + 1
	item.ClearDomainEvents()
	return nil
}

func insertHolds(ctx context.Context, q sharedPg.Querier, item *domain.InventoryItem) error {
	for _, h := range item.Holds {
		_, err := q.Exec(ctx, `
INSERT INTO inventory_holds (hold_id, item_id, owner_id, quantity, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			h.HoldID, item.ID, h.OwnerID, h.Quantity, h.CreatedAt, h.ExpiresAt,
		)
		if err != nil {
			if sharedPg.IsUniqueViolation(err) {
				return domain.ErrDuplicateHold
			}
			return fmt.Errorf("failed to insert hold: %w", err)
		}
	}
	return nil
}

func (r *InventoryRepository) saveOutbox(ctx context.Context, item *domain.InventoryItem) error {
	outboxEvents, err := events.ToOutboxEvents(ctx, r.eventFactory, item)
	if err != nil {
		return err
	}
	if err := r.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindByID loads one item with its holds
func (r *InventoryRepository) FindByID(ctx context.Context, id string) (item *domain.InventoryItem, err error) {
	defer func(start time.Time) { r.observe(ctx, "findById", start, err) }(time.Now())
	return r.load(ctx, id, domain.ErrItemNotFound)
}

// FindByHoldID loads the item owning holdID
func (r *InventoryRepository) FindByHoldID(ctx context.Context, holdID string) (item *domain.InventoryItem, err error) {
	defer func(start time.Time) { r.observe(ctx, "findByHoldId", start, err) }(time.Now())

	err = sharedPg.WithReadTx(ctx, r.pool, func(txCtx context.Context) error {
		var itemID string
		err := sharedPg.Conn(txCtx, r.pool).QueryRow(txCtx, `SELECT item_id FROM inventory_holds WHERE hold_id = $1`, holdID).Scan(&itemID)
		if err != nil {
			if sharedPg.IsNoRows(err) {
				return domain.ErrHoldNotFound
			}
			return fmt.Errorf("failed to find hold: %w", err)
		}
		item, err = r.load(txCtx, itemID, domain.ErrHoldNotFound)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// load reads the item row and its holds from one snapshot
func (r *InventoryRepository) load(ctx context.Context, id string, notFound error) (item *domain.InventoryItem, err error) {
	err = sharedPg.WithReadTx(ctx, r.pool, func(txCtx context.Context) error {
		item, err = r.loadIn(txCtx, sharedPg.Conn(txCtx, r.pool), id, notFound)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *InventoryRepository) loadIn(ctx context.Context, q sharedPg.Querier, id string, notFound error) (*domain.InventoryItem, error) {
	var (
		item     domain.InventoryItem
		category string
	)
	err := q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id).Scan(
		&item.ID, &item.SKU, &item.Name, &item.Description, &category, &item.UnitPrice,
		&item.Currency, &item.TotalQuantity, &item.IsActive, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if sharedPg.IsNoRows(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}
	item.Category = domain.Category(category)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()

	rows, err := q.Query(ctx, `
SELECT hold_id, owner_id, quantity, created_at, expires_at
FROM inventory_holds WHERE item_id = $1 ORDER BY created_at, hold_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load holds: %w", err)
	}
	holds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Hold, error) {
		var h domain.Hold
		err := row.Scan(&h.HoldID, &h.OwnerID, &h.Quantity, &h.CreatedAt, &h.ExpiresAt)
		h.CreatedAt = h.CreatedAt.UTC()
		h.ExpiresAt = h.ExpiresAt.UTC()
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan holds: %w", err)
	}
	item.Holds = holds
	return &item, nil
}

// FindIDsWithExpiredHolds lists up to limit items carrying a hold that
// expired at or before now
func (r *InventoryRepository) FindIDsWithExpiredHolds(ctx context.Context, now time.Time, limit int) (ids []string, err error) {
	defer func(start time.Time) { r.observe(ctx, "findExpired", start, err) }(time.Now())

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT item_id FROM inventory_holds WHERE expires_at <= $1 ORDER BY item_id LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan item ids: %w", err)
	}
	return ids, nil
}

// Ping checks Postgres connectivity
func (r *InventoryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// OutboxRepository returns the outbox this repository writes to
func (r *InventoryRepository) OutboxRepository() outbox.Repository {
	return r.outboxRepo
}

var _ domain.InventoryRepository = (*InventoryRepository)(nil)
