package enums

import "fmt"

// OutboxEventType names an order lifecycle event relayed through the outbox.
type OutboxEventType string

// OutboxAggregateType names the entity an outbox event is keyed by.
type OutboxAggregateType string

// OutboxDLQErrorReason records why an event left the outbox without being published.
type OutboxDLQErrorReason string

const (
	EventOrderCreated OutboxEventType = "order_created"
	EventOrderPaid    OutboxEventType = "order_paid"

	AggregateOrder OutboxAggregateType = "order"

	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// eventAggregates pins every event to the aggregate whose id it carries.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated: AggregateOrder,
	EventOrderPaid:    AggregateOrder,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is keyed by, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
