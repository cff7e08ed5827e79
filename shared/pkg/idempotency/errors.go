package idempotency

import "errors"

var (
	// ErrKeyRequired means no Idempotency-Key header was sent where one is required
	ErrKeyRequired = errors.New("idempotency key is required for this operation")

	// ErrKeyInvalid means the key has characters outside [A-Za-z0-9_-]
	ErrKeyInvalid = errors.New("invalid idempotency key format")

	// ErrKeyTooLong means the key exceeds the configured maximum length
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length")

	// ErrNotFound means no record exists for the key
	ErrNotFound = errors.New("idempotency key not found")
)
