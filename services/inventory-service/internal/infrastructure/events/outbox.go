package events

import (
	"context"
	"fmt"

	"github.com/thunderndwind/Microservices-E-Commerce/services/inventory-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
)

// AggregateType is the outbox aggregate type of inventory items
const AggregateType = "InventoryItem"

// Subject is the CloudEvents subject for an item
func Subject(itemID string) string {
	return "item/" + itemID
}

// ToOutboxEvents converts the item's pending domain events into outbox rows
// bound for the inventory topic. Unknown event types are skipped.
func ToOutboxEvents(ctx context.Context, factory *cloudevents.EventFactory, item *domain.InventoryItem) ([]*outbox.OutboxEvent, error) {
	domainEvents := item.GetDomainEvents()
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
			item.ID,
			AggregateType,
			kafka.Topics.InventoryEvents,
			cloudEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}
	return outboxEvents, nil
}

func toCloudEvent(ctx context.Context, factory *cloudevents.EventFactory, event domain.DomainEvent) *cloudevents.CloudEvent {
	switch e := event.(type) {
	case *domain.HoldPlacedEvent:
		return factory.CreateEventAt(ctx, cloudevents.HoldPlaced, Subject(e.ItemID), holdData(e.HoldChange), e.PlacedAt)
	case *domain.HoldReleasedEvent:
		return factory.CreateEventAt(ctx, cloudevents.HoldReleased, Subject(e.ItemID), holdData(e.HoldChange), e.ReleasedAt)
	case *domain.HoldFinalizedEvent:
		return factory.CreateEventAt(ctx, cloudevents.HoldFinalized, Subject(e.ItemID), holdData(e.HoldChange), e.FinalizedAt)
	case *domain.HoldExpiredEvent:
		return factory.CreateEventAt(ctx, cloudevents.HoldExpired, Subject(e.ItemID), holdData(e.HoldChange), e.ExpiredAt)
	case *domain.StockReceivedEvent:
		return factory.CreateEventAt(ctx, cloudevents.StockReceived, Subject(e.ItemID), cloudevents.StockReceivedData{
			ItemID:        e.ItemID,
			Quantity:      e.Quantity,
			TotalQuantity: e.TotalQuantity,
		}, e.ReceivedAt)
	case *domain.ItemCreatedEvent:
		return factory.CreateEventAt(ctx, cloudevents.ItemCreated, Subject(e.ItemID), cloudevents.ItemCreatedData{
			ItemID:        e.ItemID,
			SKU:           e.SKU,
			Name:          e.Name,
			UnitPrice:     e.UnitPrice,
			Currency:      e.Currency,
			TotalQuantity: e.TotalQuantity,
		}, e.CreatedAt)
	default:
		return nil
	}
}

func holdData(c domain.HoldChange) cloudevents.HoldEventData {
	return cloudevents.HoldEventData{
		ItemID:            c.ItemID,
		HoldID:            c.HoldID,
		OwnerID:           c.OwnerID,
		Quantity:          c.Quantity,
		ExpiresAt:         c.ExpiresAt,
		TotalQuantity:     c.TotalQuantity,
		AvailableQuantity: c.AvailableQuantity,
	}
}
