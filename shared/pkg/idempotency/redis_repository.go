package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps idempotency records in Redis. A locked record lives
// for the lock timeout so a crashed request frees its key; a completed one
// lives for the retention period.
type RedisRepository struct {
	rdb         redis.Cmdable
	lockTimeout time.Duration
	retention   time.Duration
}

// NewRedisRepository creates a Redis-backed key repository
func NewRedisRepository(rdb redis.Cmdable, lockTimeout, retention time.Duration) *RedisRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if retention <= 0 {
		retention = DefaultRetentionPeriod
	}
	return &RedisRepository{rdb: rdb, lockTimeout: lockTimeout, retention: retention}
}

// AcquireLock stores key with SETNX, or returns the record already stored
func (r *RedisRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	now := time.Now().UTC()
	key.LockedAt = &now

	payload, err := json.Marshal(key)
	if err != nil {
		return nil, false, fmt.Errorf("encode idempotency key: %w", err)
	}

	// The second attempt covers a record that expired between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := r.rdb.SetNX(ctx, key.StorageKey(), payload, r.lockTimeout).Result()
		if err != nil {
			return nil, false, fmt.Errorf("acquire idempotency lock: %w", err)
		}
		if created {
			return key, true, nil
		}

		existing, err := r.get(ctx, key.StorageKey())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("acquire idempotency lock: key %s churned", key.Key)
}

// StoreResponse overwrites the record as completed
func (r *RedisRepository) StoreResponse(ctx context.Context, key *IdempotencyKey) error {
	now := time.Now().UTC()
	key.CompletedAt = &now
	key.ExpiresAt = now.Add(r.retention)

	payload, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode idempotency response: %w", err)
	}
	if err := r.rdb.Set(ctx, key.StorageKey(), payload, r.retention).Err(); err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	return nil
}

// ReleaseLock deletes the record
func (r *RedisRepository) ReleaseLock(ctx context.Context, key *IdempotencyKey) error {
	if err := r.rdb.Del(ctx, key.StorageKey()).Err(); err != nil {
		return fmt.Errorf("release idempotency lock: %w", err)
	}
	return nil
}

func (r *RedisRepository) get(ctx context.Context, storageKey string) (*IdempotencyKey, error) {
	raw, err := r.rdb.Get(ctx, storageKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}

	var key IdempotencyKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return &key, nil
}

var _ KeyRepository = (*RedisRepository)(nil)
