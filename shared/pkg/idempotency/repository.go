package idempotency

import "context"

// KeyRepository stores idempotency records. AcquireLock must be atomic.
type KeyRepository interface {
	// AcquireLock stores key as locked when absent. It returns the stored
	// record and whether this call created it.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// StoreResponse marks the record completed with the captured response
	StoreResponse(ctx context.Context, key *IdempotencyKey) error

	// ReleaseLock forgets the record so the request can be retried
	ReleaseLock(ctx context.Context, key *IdempotencyKey) error
}
