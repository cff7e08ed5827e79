package events

import (
	"context"
	"fmt"

	"github.com/thunderndwind/Microservices-E-Commerce/services/payment-service/internal/domain"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/cloudevents"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/kafka"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
)

// AggregateType is the outbox aggregate type of payments
const AggregateType = "Payment"

// ToOutboxEvents converts the payment's pending domain events into outbox
// rows bound for the payment topic
func ToOutboxEvents(ctx context.Context, factory *cloudevents.EventFactory, payment *domain.Payment) ([]*outbox.OutboxEvent, error) {
	var rows []*outbox.OutboxEvent
	for _, event := range payment.GetDomainEvents() {
		var (
			eventType string
			change    domain.PaymentChange
			reason    string
		)
		switch e := event.(type) {
		case *domain.PaymentProcessedEvent:
			eventType, change = cloudevents.PaymentProcessed, e.PaymentChange
		case *domain.PaymentDeclinedEvent:
			eventType, change, reason = cloudevents.PaymentDeclined, e.PaymentChange, e.Reason
		case *domain.PaymentRefundedEvent:
			eventType, change = cloudevents.PaymentRefunded, e.PaymentChange
		default:
			continue
		}

		ce := factory.CreateEventAt(ctx, eventType, "payment/"+change.PaymentID, cloudevents.PaymentEventData{
			PaymentID:     change.PaymentID,
			OrderID:       change.OrderID,
			OwnerID:       change.OwnerID,
			Amount:        change.Amount,
			Currency:      change.Currency,
			Status:        change.Status,
			TransactionID: change.TransactionID,
			Reason:        reason,
		}, event.OccurredAt())

		row, err := outbox.NewOutboxEventFromCloudEvent(payment.ID, AggregateType, kafka.Topics.PaymentEvents, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
