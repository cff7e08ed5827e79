package events_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/infrastructure/events"
	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/contracts/asyncapi"
)

const asyncAPISpecPath = "../../../../docs/asyncapi.yaml"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func loadValidator(t *testing.T) *asyncapi.EventValidator {
	t.Helper()
	absPath, err := filepath.Abs(asyncAPISpecPath)
	require.NoError(t, err)

	validator, err := asyncapi.NewEventValidator(absPath)
	require.NoError(t, err)
	return validator
}

func encode(t *testing.T, event *cloudevents.CloudEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func TestAllEventTypesHaveSchemas(t *testing.T) {
	validator := loadValidator(t)

	expected := []string{
		cloudevents.HoldPlaced, cloudevents.HoldReleased, cloudevents.HoldFinalized, cloudevents.HoldExpired,
		cloudevents.StockReceived, cloudevents.ItemCreated,
		cloudevents.PaymentProcessed, cloudevents.PaymentDeclined, cloudevents.PaymentRefunded,
		cloudevents.PurchaseCompleted, cloudevents.PurchaseFailed,
	}
	assert.ElementsMatch(t, expected, validator.SupportedEventTypes())
}

func TestPurchaseOutboxEventsMatchSchema(t *testing.T) {
	validator := loadValidator(t)
	factory := cloudevents.NewEventFactory(cloudevents.SourceOrchestrator)

	newExecution := func() *saga.Execution {
		return saga.NewExecution("saga-1", "ORDER_1", "hold-1",
			saga.PurchaseRequest{ItemID: "item-1", Quantity: 3, OwnerID: "user-1"}, "USD", now)
	}

	t.Run("Completed", func(t *testing.T) {
		exec := newExecution()
		for _, next := range []saga.State{saga.StateStockChecked, saga.StateReserved, saga.StatePriceFetched, saga.StatePaymentSubmitted} {
			require.NoError(t, exec.TransitionTo(next, now))
		}
		exec.TotalAmount = 60
		exec.PaymentID = "pay-1"
		require.NoError(t, exec.TransitionTo(saga.StateCompleted, now))

		rows, err := events.ToOutboxEvents(context.Background(), factory, exec)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		event, err := rows[0].ToCloudEvent()
		require.NoError(t, err)
		assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
	})

	t.Run("Failed", func(t *testing.T) {
		exec := newExecution()
		exec.RecordFailure(saga.Failure{Step: saga.StepCheckStock, Code: "INSUFFICIENT_STOCK", Message: "Insufficient stock", Rejected: true})
		require.NoError(t, exec.TransitionTo(saga.StateFailed, now))

		rows, err := events.ToOutboxEvents(context.Background(), factory, exec)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		event, err := rows[0].ToCloudEvent()
		require.NoError(t, err)
		assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
	})
}

func TestInventoryEventSchemas(t *testing.T) {
	validator := loadValidator(t)
	factory := cloudevents.NewEventFactory(cloudevents.SourceInventory)
	ctx := context.Background()

	hold := cloudevents.HoldEventData{
		ItemID:            "item-1",
		HoldID:            "hold-1",
		OwnerID:           "user-1",
		Quantity:          3,
		ExpiresAt:         now.Add(10 * time.Minute),
		TotalQuantity:     10,
		AvailableQuantity: 7,
	}
	for _, eventType := range []string{cloudevents.HoldPlaced, cloudevents.HoldReleased, cloudevents.HoldFinalized, cloudevents.HoldExpired} {
		t.Run(eventType, func(t *testing.T) {
			event := factory.CreateEventAt(ctx, eventType, "item/item-1", hold, now)
			assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
		})
	}

	t.Run(cloudevents.ItemCreated, func(t *testing.T) {
		event := factory.CreateEventAt(ctx, cloudevents.ItemCreated, "item/item-1", cloudevents.ItemCreatedData{
			ItemID:        "item-1",
			Name:          "Mechanical Keyboard",
			UnitPrice:     20,
			Currency:      "USD",
			TotalQuantity: 10,
		}, now)
		assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
	})

	t.Run("NegativeQuantityRejected", func(t *testing.T) {
		bad := hold
		bad.Quantity = 0
		event := factory.CreateEventAt(ctx, cloudevents.HoldPlaced, "item/item-1", bad, now)
		assert.Error(t, validator.ValidateEventJSON(encode(t, event)))
	})
}

func TestPaymentEventSchemas(t *testing.T) {
	validator := loadValidator(t)
	factory := cloudevents.NewEventFactory(cloudevents.SourcePayment)
	ctx := context.Background()

	processed := cloudevents.PaymentEventData{
		PaymentID:     "pay-1",
		OrderID:       "ORDER_1",
		OwnerID:       "user-1",
		Amount:        60,
		Currency:      "USD",
		Status:        "SUCCESS",
		TransactionID: "TXN_0123456789ABCDEF",
	}

	t.Run(cloudevents.PaymentProcessed, func(t *testing.T) {
		event := factory.CreateEventAt(ctx, cloudevents.PaymentProcessed, "payment/pay-1", processed, now)
		assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
	})

	t.Run(cloudevents.PaymentDeclined, func(t *testing.T) {
		declined := processed
		declined.Status = "FAILED"
		declined.Reason = "card declined"
		event := factory.CreateEventAt(ctx, cloudevents.PaymentDeclined, "payment/pay-1", declined, now)
		assert.NoError(t, validator.ValidateEventJSON(encode(t, event)))
	})

	t.Run("MalformedTransactionIDRejected", func(t *testing.T) {
		bad := processed
		bad.TransactionID = "txn-1"
		event := factory.CreateEventAt(ctx, cloudevents.PaymentProcessed, "payment/pay-1", bad, now)
		assert.Error(t, validator.ValidateEventJSON(encode(t, event)))
	})
}

func TestValidateEvent_UnknownTypeRejected(t *testing.T) {
	validator := loadValidator(t)

	err := validator.ValidateEvent(asyncapi.CloudEvent{
		SpecVersion: "1.0",
		Type:        "purchase.unknown",
		Source:      cloudevents.SourceOrchestrator,
		ID:          "evt-1",
		Data:        json.RawMessage(`{}`),
	})
	assert.Error(t, err)
}
