package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	"github.com/meiduo/mall-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// dispatch publishes one order event and records the result on its row.
// Only bookkeeping failures are returned; they abort the batch.
func (r *Relay) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	fields := orderFields(event)

	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	err = r.publish(ctx, event, resolved)
	if err == nil {
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark order event %s published: %w", event.ID, err)
		}
		r.metrics.IncPublished(string(event.EventType))
		r.logg.Info(r.logg.WithFields(ctx, fields), "order event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		err = fmt.Errorf("gave up after %d publish attempts: %w", attempt, err)
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, err, fields)
	}

	fields["error"] = err.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "order event publish failed, will retry")
	if err := r.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return outcomeRetry, fmt.Errorf("mark order event %s failed: %w", event.ID, err)
	}
	r.metrics.IncFailed(string(event.EventType))
	return outcomeRetry, nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := r.topics.get(resolved.Descriptor.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic))
	}

	orderID := event.AggregateID
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderID,
		Attributes: map[string]string{
			"event_id":    resolved.Envelope.EventID,
			"event_type":  string(event.EventType),
			"order_id":    orderID,
			"occurred_at": resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := pub.Publish(publishCtx, msg).Get(publishCtx); err != nil {
		// A failed ordered publish pauses the key until it is resumed.
		pub.Resume(orderID)
		return err
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "order event moved to dead letter table")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead letter order event %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("close order event %s: %w", event.ID, err)
	}
	r.metrics.IncDead(string(event.EventType))
	return nil
}

func orderFields(event models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"order_id":      event.AggregateID,
		"attempt_count": event.AttemptCount,
	}
}
