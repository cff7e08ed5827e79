package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
)

// PaymentRepository keeps payments in process memory for local runs and
// HTTP tests
type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	byOrder  map[string]string
	events   []domain.DomainEvent
}

// NewPaymentRepository creates an empty repository
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
		byOrder:  make(map[string]string),
	}
}

func clone(p *domain.Payment) *domain.Payment {
	c := *p
	if p.RefundedAt != nil {
		at := *p.RefundedAt
		c.RefundedAt = &at
	}
	c.DomainEvents = nil
	return &c
}

// Create inserts a payment, enforcing one payment per order
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.OrderID != "" {
		if _, taken := r.byOrder[payment.OrderID]; taken {
			return domain.ErrDuplicateOrder
		}
		r.byOrder[payment.OrderID] = payment.ID
	}
	r.payments[payment.ID] = clone(payment)
	r.events = append(r.events, payment.GetDomainEvents()...)
	payment.ClearDomainEvents()
	return nil
}

// Save replaces the stored payment when the versions agree
func (r *PaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if stored.Version != payment.Version {
		return domain.ErrVersionConflict
	}

	next := clone(payment)
	next.Version++
	r.payments[payment.ID] = next
	r.events = append(r.events, payment.GetDomainEvents()...)
	payment.Version = next.Version
	payment.ClearDomainEvents()
	return nil
}

// FindByID returns a copy of the payment
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clone(p), nil
}

// FindByOrderID returns the payment recorded for orderID
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clone(r.payments[id]), nil
}

// FindByOwnerID lists an owner's payments, newest first
func (r *PaymentRepository) FindByOwnerID(ctx context.Context, ownerID string, limit int) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payment
	for _, p := range r.payments {
		if p.OwnerID == ownerID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds
func (r *PaymentRepository) Ping(ctx context.Context) error {
	return nil
}

// Events returns the types of every event recorded so far
func (r *PaymentRepository) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType()
	}
	return types
}

var _ domain.PaymentRepository = (*PaymentRepository)(nil)
