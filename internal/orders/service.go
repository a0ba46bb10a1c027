package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db"
	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/outbox"
	"github.com/meiduo/mall-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes order lookups and payment-driven status transitions.
type Service interface {
	Get(ctx context.Context, userID int64, orderID string) (*OrderDTO, error)
	ConfirmPayment(ctx context.Context, orderID, tradeID string) (*PaymentDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Get returns the order with its line items when it belongs to userID.
func (s *service) Get(ctx context.Context, userID int64, orderID string) (*OrderDTO, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindUserOrder(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

// ConfirmPayment records a verified gateway payment and moves the order from
// unpaid to awaiting_delivery. Repeating the same confirmation returns the
// recorded payment; any other state is a conflict.
func (s *service) ConfirmPayment(ctx context.Context, orderID, tradeID string) (*PaymentDTO, error) {
	orderID = strings.TrimSpace(orderID)
	tradeID = strings.TrimSpace(tradeID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if tradeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trade id required")
	}

	var result *PaymentDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status != enums.OrderStatusUnpaid {
			existing, err := repo.FindPaymentByOrder(ctx, orderID)
			if err == nil && existing.TradeID == tradeID {
				result = &PaymentDTO{OrderID: orderID, TradeID: tradeID}
				return nil
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}

		if _, err := repo.CreatePayment(ctx, &models.Payment{OrderID: orderID, TradeID: tradeID}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		moved, err := repo.UpdateStatusIf(ctx, orderID, enums.OrderStatusUnpaid, enums.OrderStatusAwaitingDelivery)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{UserID: order.UserID},
			Data: payloads.OrderPaidEvent{
				OrderID: orderID,
				UserID:  order.UserID,
				TradeID: tradeID,
				PaidAt:  s.now().UTC(),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid event")
		}

		result = &PaymentDTO{OrderID: orderID, TradeID: tradeID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID), map[string]any{"trade_id": tradeID})
	s.logg.Info(logCtx, "order payment confirmed")
	return result, nil
}
