package domain

import "context"

// PaymentRepository persists payments together with their pending events
type PaymentRepository interface {
	// Create inserts a new payment; ErrDuplicateOrder if its order already has one
	Create(ctx context.Context, payment *Payment) error

	// Save writes payment if the stored version still equals payment.Version
	Save(ctx context.Context, payment *Payment) error

	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// FindByOwnerID lists an owner's payments, newest first
	FindByOwnerID(ctx context.Context, ownerID string, limit int) ([]*Payment, error)

	Ping(ctx context.Context) error
}
