package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/infrastructure/events"
	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	sharedMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	outboxMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox/mongodb"
)

// SagasCollection holds one document per purchase saga
const SagasCollection = "purchase_sagas"

// ExecutionStore persists saga executions in MongoDB. Terminal transitions
// write their purchase events to the outbox in the same transaction.
type ExecutionStore struct {
	client       *sharedMongo.InstrumentedClient
	collection   *sharedMongo.InstrumentedCollection
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewExecutionStore creates the store. Call EnsureIndexes once at startup.
func NewExecutionStore(client *sharedMongo.InstrumentedClient, eventFactory *cloudevents.EventFactory) *ExecutionStore {
	return &ExecutionStore{
		client:       client,
		collection:   client.Collection(SagasCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(client.Database()),
		eventFactory: eventFactory,
	}
}

// EnsureIndexes creates the saga and outbox indexes
func (s *ExecutionStore) EnsureIndexes(ctx context.Context) error {
	unfinalized := bson.M{"state": saga.StateCompleted, "finalized": false}
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetName("idx_order_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "updatedAt", Value: 1}},
			Options: options.Index().SetName("idx_state_updated_at"),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_owner_created_at"),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetName("idx_unfinalized").SetPartialFilterExpression(unfinalized),
		},
	}
	if err := s.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create saga indexes: %w", err)
	}
	return s.outboxRepo.EnsureIndexes(ctx)
}

// Create inserts a new execution
func (s *ExecutionStore) Create(ctx context.Context, exec *saga.Execution) error {
	err := s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.collection.InsertOne(sessCtx, exec); err != nil {
			if sharedMongo.IsDuplicateKey(err) {
				return saga.ErrExecutionExists
			}
			return fmt.Errorf("failed to insert saga execution: %w", err)
		}
		return s.saveOutbox(sessCtx, exec)
	})
	if err != nil {
		return err
	}

	exec.ClearDomainEvents()
	return nil
}

// Save replaces the stored execution when its version still matches, then
// bumps exec.Version
func (s *ExecutionStore) Save(ctx context.Context, exec *saga.Execution) error {
	expected := exec.Version

	err := s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		next := *exec
		next.Version = expected + 1
		next.DomainEvents = nil

		result, err := s.collection.ReplaceOne(sessCtx, bson.M{"_id": exec.ID, "version": expected}, &next)
		if err != nil {
			return fmt.Errorf("failed to save saga execution: %w", err)
		}
		if result.MatchedCount == 0 {
			return s.missOrConflict(sessCtx, exec.ID)
		}

		return s.saveOutbox(sessCtx, exec)
	})
	if err != nil {
		return err
	}

	exec.Version = expected + 1
	exec.ClearDomainEvents()
	return nil
}

// missOrConflict tells a missing execution from a stale version
func (s *ExecutionStore) missOrConflict(ctx context.Context, id string) error {
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check saga execution: %w", err)
	}
	if n == 0 {
		return saga.ErrExecutionNotFound
	}
	return saga.ErrVersionConflict
}

func (s *ExecutionStore) saveOutbox(ctx context.Context, exec *saga.Execution) error {
	outboxEvents, err := events.ToOutboxEvents(ctx, s.eventFactory, exec)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindByID loads one execution
func (s *ExecutionStore) FindByID(ctx context.Context, id string) (*saga.Execution, error) {
	var exec saga.Execution
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&exec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, saga.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to load saga execution: %w", err)
	}
	return &exec, nil
}

// FindStale lists up to limit executions in states whose last update was
// before cutoff, oldest first
func (s *ExecutionStore) FindStale(ctx context.Context, states []saga.State, cutoff time.Time, limit int) ([]*saga.Execution, error) {
	filter := bson.M{
		"state":     bson.M{"$in": states},
		"updatedAt": bson.M{"$lt": cutoff},
	}
	return s.find(ctx, filter, limit)
}

// FindUnfinalized lists up to limit completed executions whose finalize
// has not landed and was not given up on, oldest first
func (s *ExecutionStore) FindUnfinalized(ctx context.Context, limit int) ([]*saga.Execution, error) {
	filter := bson.M{
		"state":                  saga.StateCompleted,
		"finalized":              false,
		"finalizeProgress.abandoned": bson.M{"$ne": true},
	}
	return s.find(ctx, filter, limit)
}

func (s *ExecutionStore) find(ctx context.Context, filter bson.M, limit int) ([]*saga.Execution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sagas: %w", err)
	}
	defer cursor.Close(ctx)

	var executions []*saga.Execution
	if err := cursor.All(ctx, &executions); err != nil {
		return nil, fmt.Errorf("failed to decode saga executions: %w", err)
	}
	return executions, nil
}

// Ping checks MongoDB connectivity
func (s *ExecutionStore) Ping(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// OutboxRepository returns the outbox this store writes to
func (s *ExecutionStore) OutboxRepository() outbox.Repository {
	return s.outboxRepo
}

var _ saga.ExecutionStore = (*ExecutionStore)(nil)
