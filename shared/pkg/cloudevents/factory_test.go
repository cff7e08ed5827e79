package cloudevents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
)

func TestCreateEvent(t *testing.T) {
	factory := NewEventFactory(SourceInventory)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")

	event := factory.CreateEvent(ctx, HoldPlaced, "item/item-1", map[string]int{"quantity": 2})

	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, HoldPlaced, event.Type)
	assert.Equal(t, SourceInventory, event.Source)
	assert.Equal(t, "item/item-1", event.Subject)
	assert.Equal(t, "application/json", event.DataContentType)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, time.UTC, event.Time.Location())
}

func TestCreateEvent_UniqueIDs(t *testing.T) {
	factory := NewEventFactory(SourcePayment)
	a := factory.CreateEvent(context.Background(), PaymentProcessed, "payment/p-1", nil)
	b := factory.CreateEvent(context.Background(), PaymentProcessed, "payment/p-1", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.CorrelationID)
}

func TestCreateEventAt(t *testing.T) {
	factory := NewEventFactory(SourceOrchestrator)
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))

	event := factory.CreateEventAt(context.Background(), PurchaseCompleted, "saga/s-1", nil, at)
	assert.Equal(t, at.UTC(), event.Time)

	fallback := factory.CreateEventAt(context.Background(), PurchaseCompleted, "saga/s-1", nil, time.Time{})
	assert.False(t, fallback.Time.IsZero())
}
