package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/infrastructure/events"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	sharedMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/mongodb"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	outboxMongo "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox/mongodb"
)

// PaymentsCollection holds one document per payment
const PaymentsCollection = "payments"

// PaymentRepository implements domain.PaymentRepository using MongoDB
type PaymentRepository struct {
	client       *sharedMongo.InstrumentedClient
	collection   *sharedMongo.InstrumentedCollection
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(client *sharedMongo.InstrumentedClient, eventFactory *cloudevents.EventFactory) *PaymentRepository {
	return &PaymentRepository{
		client:       client,
		collection:   client.Collection(PaymentsCollection),
		outboxRepo:   outboxMongo.NewOutboxRepository(client.Database()),
		eventFactory: eventFactory,
	}
}

// EnsureIndexes creates the payment and outbox indexes. orderId is unique
// among payments that carry one.
func (r *PaymentRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().
				SetName("idx_order_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"orderId": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_owner_created"),
		},
		{
			Keys:    bson.D{{Key: "transactionId", Value: 1}},
			Options: options.Index().SetName("idx_transaction_id").SetUnique(true),
		},
	}
	if err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// Create inserts the payment and its events in one transaction
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, payment); err != nil {
			if sharedMongo.IsDuplicateKey(err) {
				return domain.ErrDuplicateOrder
			}
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		return r.saveOutbox(sessCtx, payment)
	})
	if err != nil {
		return err
	}

	payment.ClearDomainEvents()
	return nil
}

// Save replaces the payment under an optimistic version check
func (r *PaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	expected := payment.Version

	err := r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		next := *payment
		next.Version = expected + 1

		result, err := r.collection.ReplaceOne(sessCtx, bson.M{"_id": payment.ID, "version": expected}, &next)
		if err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrVersionConflict
		}
		return r.saveOutbox(sessCtx, payment)
	})
	if err != nil {
		return err
	}

	payment.Version = expected + 1
	payment.ClearDomainEvents()
	return nil
}

func (r *PaymentRepository) saveOutbox(ctx context.Context, payment *domain.Payment) error {
	rows, err := events.ToOutboxEvents(ctx, r.eventFactory, payment)
	if err != nil {
		return err
	}
	if err := r.outboxRepo.SaveAll(ctx, rows); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindByID retrieves a payment by ID
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByOrderID retrieves the payment of an order
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID})
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.collection.FindOne(ctx, filter).Decode(&payment); err != nil {
		if sharedMongo.IsNoDocuments(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &payment, nil
}

// FindByOwnerID lists an owner's payments, newest first
func (r *PaymentRepository) FindByOwnerID(ctx context.Context, ownerID string, limit int) ([]*domain.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []*domain.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}

// Ping checks MongoDB connectivity
func (r *PaymentRepository) Ping(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

// OutboxRepository returns the outbox this repository writes to
func (r *PaymentRepository) OutboxRepository() outbox.Repository {
	return r.outboxRepo
}

var _ domain.PaymentRepository = (*PaymentRepository)(nil)
