package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	"github.com/meiduo/mall-backend/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return db
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "order-1",
			Actor:         &ActorRef{UserID: 9},
			Data:          payloads.OrderCreatedEvent{OrderID: "order-1", UserID: 9},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "order-1", rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, int64(9), envelope.Actor.UserID)

	var data payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "order-1", data.OrderID)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "order-2",
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateID: "x"}))
	require.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: "order_shipped", AggregateID: "x"}))
	require.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: enums.EventOrderPaid}))
	require.Error(t, svc.Emit(ctx, db, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: "vendor", AggregateID: "x"}))
}

func TestEmitDefaultsAggregateFromEventType(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)

	require.NoError(t, svc.Emit(context.Background(), db, DomainEvent{
		EventType:   enums.EventOrderPaid,
		AggregateID: "order-4",
		Data:        payloads.OrderPaidEvent{OrderID: "order-4", TradeID: "t-4"},
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, enums.AggregateOrder, row.AggregateType)
}

func TestDecodeEnvelopeRejectsMissingData(t *testing.T) {
	_, err := DecodeEnvelope(json.RawMessage(`{"version":1,"eventId":"e-1","data":null}`))
	require.ErrorIs(t, err, ErrEmptyEnvelopeData)

	_, err = DecodeEnvelope(json.RawMessage(`not-json`))
	require.Error(t, err)

	env, err := DecodeEnvelope(json.RawMessage(`{"version":2,"eventId":"e-2","data":{"orderId":"o-1"}}`))
	require.NoError(t, err)
	require.Equal(t, 2, env.Version)
	require.Equal(t, "e-2", env.EventID)
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	ctx := context.Background()
	event := DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "order-3",
		Data:          payloads.OrderPaidEvent{OrderID: "order-3", TradeID: "t-1"},
	}

	require.NoError(t, svc.EmitIfNotExists(ctx, db, event))
	require.NoError(t, svc.EmitIfNotExists(ctx, db, event))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Emit(ctx, db, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Data:          map[string]string{"order_id": id},
		}))
	}

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, repo.MarkPublishedTx(db, pending[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, pending[1].ID, errors.New("broker down")))
	require.NoError(t, repo.MarkTerminalTx(db, pending[2].ID, errors.New("bad payload"), 3))

	pending, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	require.Equal(t, "broker down", *pending[0].LastError)
}

func TestDeletePublishedBeforeKeepsPendingAndRecentRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: "old", Payload: json.RawMessage(`{}`), PublishedAt: &old},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: "recent", Payload: json.RawMessage(`{}`), PublishedAt: &recent},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: "pending", Payload: json.RawMessage(`{}`)},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(db, row))
	}

	deleted, err := repo.DeletePublishedBefore(ctx, db, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining []string
	require.NoError(t, db.Model(&models.OutboxEvent{}).Order("aggregate_id").Pluck("aggregate_id", &remaining).Error)
	require.Equal(t, []string{"pending", "recent"}, remaining)

	_, err = repo.DeletePublishedBefore(ctx, nil, now)
	require.Error(t, err)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)
	eventID := uuid.New()
	long := make([]byte, maxErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)

	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "order-9",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, maxErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	again := "second attempt"
	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "order-9",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &again,
	}))
	var count int64
	require.NoError(t, db.Model(&models.OutboxDLQ{}).Where("event_id = ?", eventID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestClipErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxErrorLen-1) + "库存"
	got := clipError(msg)
	require.True(t, utf8.ValidString(got))
	require.Len(t, got, maxErrorLen-1)
	require.Equal(t, "short", clipError("short"))
}
