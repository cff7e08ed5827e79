package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/logging"
)

// EventFactory stamps CloudEvents for one event source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// Source returns the source attribute stamped on every event
func (f *EventFactory) Source() string {
	return f.source
}

// CreateEvent builds an event, copying the correlation id from ctx when the
// request middleware put one there.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	if ctx != nil {
		if id, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
			event.CorrelationID = id
		}
	}
	return event
}

// CreateEventAt builds an event with an explicit occurrence time. Domain
// events carry the time the ledger observed, not the time they were mapped.
func (f *EventFactory) CreateEventAt(ctx context.Context, eventType, subject string, data interface{}, at time.Time) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	if !at.IsZero() {
		event.Time = at.UTC()
	}
	return event
}
