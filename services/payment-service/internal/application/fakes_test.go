package application

import (
	"context"
	"sync"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
)

type fakeGateway struct {
	mu       sync.Mutex
	decision Decision
	err      error
	calls    int
}

func (g *fakeGateway) Authorize(ctx context.Context, payment *domain.Payment, card *domain.CardDetails) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.decision, g.err
}

// fakePaymentRepo stores copies and can be told to fail or to lose the
// order uniqueness race once
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	events   []domain.DomainEvent

	findErr      error
	createErr    error
	racingWinner *domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*domain.Payment)}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.DomainEvents = nil
	return &c
}

func (f *fakePaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.racingWinner != nil {
		f.payments[f.racingWinner.ID] = clonePayment(f.racingWinner)
		f.racingWinner = nil
		return domain.ErrDuplicateOrder
	}
	f.payments[payment.ID] = clonePayment(payment)
	f.events = append(f.events, payment.GetDomainEvents()...)
	payment.ClearDomainEvents()
	return nil
}

func (f *fakePaymentRepo) Save(ctx context.Context, payment *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if stored.Version != payment.Version {
		return domain.ErrVersionConflict
	}
	payment.Version++
	f.payments[payment.ID] = clonePayment(payment)
	f.events = append(f.events, payment.GetDomainEvents()...)
	payment.ClearDomainEvents()
	return nil
}

func (f *fakePaymentRepo) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (f *fakePaymentRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, p := range f.payments {
		if p.OrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (f *fakePaymentRepo) FindByOwnerID(ctx context.Context, ownerID string, limit int) ([]*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*domain.Payment
	for _, p := range f.payments {
		if p.OwnerID == ownerID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) Ping(ctx context.Context) error {
	return f.findErr
}

func (f *fakePaymentRepo) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.events))
	for i, e := range f.events {
		types[i] = e.EventType()
	}
	return types
}
