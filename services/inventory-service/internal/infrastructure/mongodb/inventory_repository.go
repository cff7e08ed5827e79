package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/infrastructure/events"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	sharedMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	outboxMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox/mongodb"
)

// ItemsCollection holds one document per item with its holds embedded
const ItemsCollection = "inventory_items"

// InventoryRepository stores items in MongoDB. Every write runs in a
// transaction together with the item's outbox rows.
type InventoryRepository struct {
	client       *sharedMongo.InstrumentedClient
	collection   *sharedMongo.InstrumentedCollection
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewInventoryRepository creates the repository. Call EnsureIndexes once at startup.
func NewInventoryRepository(client *sharedMongo.InstrumentedClient, eventFactory *cloudevents.EventFactory) *InventoryRepository {
	return &InventoryRepository{
		client:       client,
		collection:   client.Collection(ItemsCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(client.Database()),
		eventFactory: eventFactory,
	}
}

// EnsureIndexes creates the item and outbox indexes
func (r *InventoryRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "holds.holdId", Value: 1}},
			Options: options.Index().
				SetName("idx_hold_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"holds.holdId": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "holds.expiresAt", Value: 1}},
			Options: options.Index().SetName("idx_hold_expires_at"),
		},
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetName("idx_sku"),
		},
	}
	if err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create inventory indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// Create inserts a new item and its creation events
func (r *InventoryRepository) Create(ctx context.Context, item *domain.InventoryItem) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, item); err != nil {
			if sharedMongo.IsDuplicateKey(err) {
				return domain.ErrItemExists
			}
			return fmt.Errorf("failed to insert inventory item: %w", err)
		}
		return r.saveOutbox(sessCtx, item)
	})
	if err != nil {
		return err
	}

	item.ClearDomainEvents()
	return nil
}

// Save replaces the stored item when its version still matches, then bumps
// item.Version. The item's pending events are written in the same transaction.
func (r *InventoryRepository) Save(ctx context.Context, item *domain.InventoryItem) error {
	expected := item.Version

	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// 1. Replace the aggregate if nobody else wrote it first
		next := *item
		next.Version = expected + 1

		result, err := r.collection.ReplaceOne(sessCtx, bson.M{"_id": item.ID, "version": expected}, &next)
		if err != nil {
			if sharedMongo.IsDuplicateKey(err) {
				return domain.ErrDuplicateHold
			}
			return fmt.Errorf("failed to save inventory item: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrVersionConflict
		}

		// 2. Save domain events to outbox
		return r.saveOutbox(sessCtx, item)
	})
	if err != nil {
		return err
	}

	// 3. Only a committed write advances the in-memory copy
	item.Version = expected + 1
	item.ClearDomainEvents()
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

// FindByID loads one item
func (r *InventoryRepository) FindByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return r.findOne(ctx, bson.M{"_id": id}, domain.ErrItemNotFound)
}

// FindByHoldID loads the item whose holds contain holdID
func (r *InventoryRepository) FindByHoldID(ctx context.Context, holdID string) (*domain.InventoryItem, error) {
	return r.findOne(ctx, bson.M{"holds.holdId": holdID}, domain.ErrHoldNotFound)
}

func (r *InventoryRepository) findOne(ctx context.Context, filter bson.M, notFound error) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	if err := r.collection.FindOne(ctx, filter).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}
	if item.Holds == nil {
		item.Holds = make([]domain.Hold, 0)
	}
	return &item, nil
}

// FindIDsWithExpiredHolds lists up to limit items carrying a hold that
// expired at or before now
func (r *InventoryRepository) FindIDsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"holds.expiresAt": bson.M{"$lte": now}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode item ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// Ping checks MongoDB connectivity
func (r *InventoryRepository) Ping(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

// OutboxRepository returns the outbox this repository writes to
func (r *InventoryRepository) OutboxRepository() outbox.Repository {
	return r.outboxRepo
}

var _ domain.InventoryRepository = (*InventoryRepository)(nil)
