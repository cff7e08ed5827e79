package events

import (
	"context"
	"fmt"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
)

// AggregateType is the outbox aggregate type of purchase sagas
const AggregateType = "PurchaseSaga"

// Subject is the CloudEvents subject for a saga
func Subject(sagaID string) string {
	return "purchase/" + sagaID
}

// ToOutboxEvents converts the execution's pending events into outbox rows
// bound for the purchase topic
func ToOutboxEvents(ctx context.Context, factory *cloudevents.EventFactory, exec *saga.Execution) ([]*outbox.OutboxEvent, error) {
	domainEvents := exec.GetDomainEvents()
	if len(domainEvents) == 0 {
		return nil, nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		cloudEvent := toCloudEvent(ctx, factory, event)
		if cloudEvent == nil {
			continue
		}

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(
			exec.ID,
			AggregateType,
			kafka.Topics.PurchaseEvents,
			cloudEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}
	return outboxEvents, nil
}

func toCloudEvent(ctx context.Context, factory *cloudevents.EventFactory, event saga.DomainEvent) *cloudevents.CloudEvent {
	switch e := event.(type) {
	case *saga.PurchaseCompletedEvent:
		return factory.CreateEventAt(ctx, cloudevents.PurchaseCompleted, Subject(e.SagaID), purchaseData(e.PurchaseChange), e.CompletedAt)
	case *saga.PurchaseFailedEvent:
		return factory.CreateEventAt(ctx, cloudevents.PurchaseFailed, Subject(e.SagaID), purchaseData(e.PurchaseChange), e.FailedAt)
	default:
		return nil
	}
}

func purchaseData(c saga.PurchaseChange) cloudevents.PurchaseEventData {
	return cloudevents.PurchaseEventData{
		SagaID:        c.SagaID,
		OrderID:       c.OrderID,
		ItemID:        c.ItemID,
		OwnerID:       c.OwnerID,
		Quantity:      c.Quantity,
		TotalAmount:   c.TotalAmount,
		PaymentID:     c.PaymentID,
		HoldID:        c.HoldID,
		State:         string(c.State),
		FailedStep:    string(c.FailedStep),
		FailureReason: c.FailureReason,
		Compensated:   c.Compensated,
	}
}
