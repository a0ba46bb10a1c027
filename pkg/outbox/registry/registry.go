package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	"github.com/meiduo/mall-backend/pkg/outbox"
	"github.com/meiduo/mall-backend/pkg/outbox/payloads"
)

// orderPayload is implemented by every payload the relay publishes; the
// order id it carries must match the outbox row's aggregate id.
type orderPayload interface {
	OrderKey() string
}

// EventDescriptor says where an order event goes and how its data decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() orderPayload
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry resolves stored order events against their schemas.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

var payloadFactories = map[enums.OutboxEventType]func() orderPayload{
	enums.EventOrderCreated: func() orderPayload { return &payloads.OrderCreatedEvent{} },
	enums.EventOrderPaid:    func() orderPayload { return &payloads.OrderPaidEvent{} },
}

// NewEventRegistry routes every order event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if topic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadFactories))}
	for eventType, factory := range payloadFactories {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  eventType.Aggregate(),
			Topic:          topic,
			PayloadFactory: factory,
		}
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError: the row will not change on retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, permanent("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	orderID := strings.TrimSpace(event.AggregateID)
	if orderID == "" {
		return nil, permanent("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %v", event.EventType, err)
	}
	if key := payload.OrderKey(); key != orderID {
		return nil, permanent("%s payload is for order %q, row is for %q", event.EventType, key, orderID)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
