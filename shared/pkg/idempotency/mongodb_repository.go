package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// KeysCollection holds one document per stored key
const KeysCollection = "idempotency_keys"

type keyDocument struct {
	ID             string `bson:"_id"`
	IdempotencyKey `bson:",inline"`
}

// MongoKeyRepository keeps idempotency records in MongoDB, keyed by the
// scoped storage key. A TTL index on expiresAt drops old records; a lock
// older than the lock timeout is taken over by the next request.
type MongoKeyRepository struct {
	collection  *mongo.Collection
	lockTimeout time.Duration
	retention   time.Duration
}

// NewMongoKeyRepository creates a MongoDB-backed key repository
func NewMongoKeyRepository(db *mongo.Database, lockTimeout, retention time.Duration) *MongoKeyRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if retention <= 0 {
		retention = DefaultRetentionPeriod
	}
	return &MongoKeyRepository{
		collection:  db.Collection(KeysCollection),
		lockTimeout: lockTimeout,
		retention:   retention,
	}
}

// EnsureIndexes creates the expiry index
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
	})
	return err
}

// AcquireLock inserts key as locked, or returns the record already stored
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	now := time.Now().UTC()
	key.LockedAt = &now
	doc := keyDocument{ID: key.StorageKey(), IdempotencyKey: *key}

	// The second attempt follows a takeover or a record deleted under us.
	for attempt := 0; attempt < 2; attempt++ {
		_, err := r.collection.InsertOne(ctx, doc)
		if err == nil {
			return key, true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("acquire idempotency lock: %w", err)
		}

		existing, err := r.get(ctx, doc.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if !r.abandoned(existing, now) {
			return existing, false, nil
		}

		// Only the request that still sees the same lock removes it.
		if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": doc.ID, "lockedAt": existing.LockedAt}); err != nil {
			return nil, false, fmt.Errorf("take over idempotency lock: %w", err)
		}
	}
	return nil, false, fmt.Errorf("acquire idempotency lock: key %s churned", key.Key)
}

// abandoned reports a lock whose request never finished, or a completed
// record the TTL monitor has not removed yet
func (r *MongoKeyRepository) abandoned(existing *IdempotencyKey, now time.Time) bool {
	if existing.IsCompleted() {
		return !existing.ExpiresAt.After(now)
	}
	return existing.LockedAt != nil && existing.LockedAt.Add(r.lockTimeout).Before(now)
}

// StoreResponse marks the record completed
func (r *MongoKeyRepository) StoreResponse(ctx context.Context, key *IdempotencyKey) error {
	now := time.Now().UTC()
	key.CompletedAt = &now
	key.ExpiresAt = now.Add(r.retention)

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": key.StorageKey()}, bson.M{
		"$set": bson.M{
			"responseCode": key.ResponseCode,
			"responseBody": key.ResponseBody,
			"completedAt":  now,
			"expiresAt":    key.ExpiresAt,
		},
	})
	if err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("store idempotency response: %w", ErrNotFound)
	}
	return nil
}

// ReleaseLock deletes the record
func (r *MongoKeyRepository) ReleaseLock(ctx context.Context, key *IdempotencyKey) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": key.StorageKey()}); err != nil {
		return fmt.Errorf("release idempotency lock: %w", err)
	}
	return nil
}

func (r *MongoKeyRepository) get(ctx context.Context, id string) (*IdempotencyKey, error) {
	var doc keyDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	return &doc.IdempotencyKey, nil
}

var _ KeyRepository = (*MongoKeyRepository)(nil)
