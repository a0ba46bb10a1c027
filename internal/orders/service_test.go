package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/outbox"
	"github.com/meiduo/mall-backend/pkg/outbox/payloads"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type failingOutbox struct{}

func (failingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func newTestService(t *testing.T, db *gorm.DB, emitter outboxPublisher) *service {
	t.Helper()
	if emitter == nil {
		emitter = outbox.NewService(outbox.NewRepository(db), nil)
	}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, emitter, logg)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestServiceGetReturnsOwnedOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	seedOrder(t, NewRepository(db), "o-1", 7, enums.OrderStatusUnpaid)
	svc := newTestService(t, db, nil)

	dto, err := svc.Get(context.Background(), 7, "o-1")
	require.NoError(t, err)
	require.Equal(t, "o-1", dto.OrderID)
	require.Len(t, dto.Items, 2)
	require.True(t, dto.Items[0].Subtotal.Equal(decimal.NewFromInt(6)))

	_, err = svc.Get(context.Background(), 8, "o-1")
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = svc.Get(context.Background(), 7, " ")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Get(context.Background(), 0, "o-1")
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
}

func TestConfirmPaymentMovesUnpaidOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	seedOrder(t, NewRepository(db), "o-1", 7, enums.OrderStatusUnpaid)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	payment, err := svc.ConfirmPayment(ctx, "o-1", "trade-1")
	require.NoError(t, err)
	require.Equal(t, "trade-1", payment.TradeID)

	var order models.OrderInfo
	require.NoError(t, db.First(&order, "order_id = ?", "o-1").Error)
	require.Equal(t, enums.OrderStatusAwaitingDelivery, order.Status)

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderPaid, events[0].EventType)
	require.Equal(t, "o-1", events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var paid payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &paid))
	require.Equal(t, int64(7), paid.UserID)
	require.Equal(t, "trade-1", paid.TradeID)

	again, err := svc.ConfirmPayment(ctx, "o-1", "trade-1")
	require.NoError(t, err, "same confirmation is idempotent")
	require.Equal(t, "trade-1", again.TradeID)
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)

	_, err = svc.ConfirmPayment(ctx, "o-1", "trade-2")
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestConfirmPaymentRejectsCashOnDeliveryOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	seedOrder(t, NewRepository(db), "o-cod", 7, enums.OrderStatusAwaitingDelivery)
	svc := newTestService(t, db, nil)

	_, err := svc.ConfirmPayment(context.Background(), "o-cod", "trade-1")
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestConfirmPaymentValidation(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	_, err := svc.ConfirmPayment(ctx, "", "trade")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = svc.ConfirmPayment(ctx, "o-1", " ")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = svc.ConfirmPayment(ctx, "missing", "trade")
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestConfirmPaymentRejectsReusedTrade(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seedOrder(t, repo, "o-1", 7, enums.OrderStatusUnpaid)
	seedOrder(t, repo, "o-2", 7, enums.OrderStatusUnpaid)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	_, err := svc.ConfirmPayment(ctx, "o-1", "trade-1")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, "o-2", "trade-1")
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	var order models.OrderInfo
	require.NoError(t, db.First(&order, "order_id = ?", "o-2").Error)
	require.Equal(t, enums.OrderStatusUnpaid, order.Status)
}

func TestConfirmPaymentRollsBackWhenOutboxFails(t *testing.T) {
	db := setupOrdersTestDB(t)
	seedOrder(t, NewRepository(db), "o-1", 7, enums.OrderStatusUnpaid)
	svc := newTestService(t, db, failingOutbox{})

	_, err := svc.ConfirmPayment(context.Background(), "o-1", "trade-1")
	require.Equal(t, pkgerrors.CodeInternal, pkgerrors.As(err).Code())

	var order models.OrderInfo
	require.NoError(t, db.First(&order, "order_id = ?", "o-1").Error)
	require.Equal(t, enums.OrderStatusUnpaid, order.Status)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	db := setupOrdersTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(db), nil)
	if _, err := NewService(nil, gormTxRunner{db: db}, emitter, logg); err == nil {
		t.Fatal("expected error for missing repository")
	}
	if _, err := NewService(NewRepository(db), nil, emitter, logg); err == nil {
		t.Fatal("expected error for missing tx runner")
	}
	if _, err := NewService(NewRepository(db), gormTxRunner{db: db}, nil, logg); err == nil {
		t.Fatal("expected error for missing outbox")
	}
	if _, err := NewService(NewRepository(db), gormTxRunner{db: db}, emitter, nil); err == nil {
		t.Fatal("expected error for missing logger")
	}
}
