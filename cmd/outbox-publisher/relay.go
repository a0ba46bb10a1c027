package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/metrics"
	"github.com/meiduo/mall-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// RelayParams wires the order event relay.
type RelayParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Broker     broker
	Repository outboxRepository
	DLQ        dlqRepository
	Resolver   eventResolver
	Metrics    *metrics.OutboxMetrics
}

// Relay moves committed order events from the outbox table to Pub/Sub. Events
// of one order are published in commit order under the order id as ordering
// key.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	broker      broker
	topics      *topicPublishers
	repo        outboxRepository
	dlq         dlqRepository
	resolver    eventResolver
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	pace        pacer
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("pubsub broker is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Resolver == nil:
		return nil, errors.New("event resolver is required")
	}

	batch := p.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := p.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	pollMs := p.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		topics:      newTopicPublishers(p.Broker),
		repo:        p.Repository,
		dlq:         p.DLQ,
		resolver:    p.Resolver,
		metrics:     p.Metrics,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		pace:        newPacer(time.Duration(pollMs) * time.Millisecond),
	}, nil
}

// Run relays batches until ctx is canceled. An empty batch waits one poll
// interval; a failed batch backs off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	defer r.topics.stop()

	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "order event relay stopping")
			return err
		}

		relayed, err := r.relayBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "order event batch failed", err)
			wait = r.pace.failed()
		case relayed:
			r.pace.reset()
			continue
		default:
			wait = r.pace.idle()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// relayBatch locks a batch of pending rows and settles each one inside the
// same transaction. It reports whether any row was found.
func (r *Relay) relayBatch(ctx context.Context) (bool, error) {
	found := false
	started := time.Now()
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch pending order events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		found = true

		held := map[string]struct{}{}
		for _, event := range events {
			if _, blocked := held[event.AggregateID]; blocked {
				r.logg.Debug(r.logg.WithFields(ctx, orderFields(event)), "order event held behind an earlier retry")
				continue
			}
			outcome, err := r.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			if outcome == outcomeRetry {
				held[event.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	if found {
		r.metrics.ObserveBatch(time.Since(started))
	}
	return found, err
}
