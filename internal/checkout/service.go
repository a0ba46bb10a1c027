package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/internal/cart"
	"github.com/meiduo/mall-backend/internal/checkout/helpers"
	"github.com/meiduo/mall-backend/internal/inventory"
	"github.com/meiduo/mall-backend/internal/orders"
	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/metrics"
	"github.com/meiduo/mall-backend/pkg/outbox"
	"github.com/meiduo/mall-backend/pkg/outbox/payloads"
)

// ErrEmptyCart is returned when the user has no selected cart entries.
var ErrEmptyCart = errors.New("no selected cart items")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

type cartStore interface {
	ListSelected(ctx context.Context, userID int64) ([]cart.Entry, error)
	Clear(ctx context.Context, userID int64, skuIDs []int64) error
}

type skuCatalog interface {
	FindSKUs(ctx context.Context, ids []int64) (map[int64]models.SKU, error)
}

type stockLedger interface {
	ConditionalDecrement(ctx context.Context, tx *gorm.DB, skuID int64, qty int) (*inventory.Decrement, error)
	ReplaySales(ctx context.Context, db *gorm.DB, bumps []inventory.SalesBump)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service converts a user's selected cart entries into an order.
type Service interface {
	Checkout(ctx context.Context, userID, addressID int64, payMethod enums.PayMethod) (*orders.OrderDTO, error)
	Preview(ctx context.Context, userID int64) (*Settlement, error)
}

// SettlementItem is one selected line priced from the current catalog.
type SettlementItem struct {
	SKUID  int64           `json:"sku_id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Settlement is the order preview shown before checkout.
type Settlement struct {
	Items         []SettlementItem `json:"items"`
	TotalCount    int              `json:"total_count"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Freight       decimal.Decimal  `json:"freight"`
	PaymentAmount decimal.Decimal  `json:"payment_amount"`
}

type service struct {
	tx      txRunner
	cart    cartStore
	catalog skuCatalog
	orders  orders.Repository
	ledger  stockLedger
	outbox  outboxPublisher
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	freight decimal.Decimal
	now     func() time.Time
}

// NewService builds the checkout service. metrics may be nil.
func NewService(
	tx txRunner,
	cartStore cartStore,
	catalog skuCatalog,
	ordersRepo orders.Repository,
	ledger stockLedger,
	publisher outboxPublisher,
	m *metrics.CheckoutMetrics,
	logg *logger.Logger,
	freight decimal.Decimal,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartStore == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if freight.IsNegative() {
		return nil, fmt.Errorf("freight must not be negative")
	}
	return &service{
		tx:      tx,
		cart:    cartStore,
		catalog: catalog,
		orders:  ordersRepo,
		ledger:  ledger,
		outbox:  publisher,
		metrics: m,
		logg:    logg,
		freight: freight,
		now:     time.Now,
	}, nil
}

// Checkout places an order for every selected cart entry. The order shell,
// stock decrements, line items, totals and the order_created event commit
// together or not at all. Purchased entries leave the cart only after commit.
func (s *service) Checkout(ctx context.Context, userID, addressID int64, payMethod enums.PayMethod) (*orders.OrderDTO, error) {
	start := time.Now()
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if addressID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}
	if !payMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported pay method").
			WithDetails(map[string]any{"pay_method": payMethod})
	}
	ctx = s.logg.WithUserID(ctx, userID)

	entries, err := s.cart.ListSelected(ctx, userID)
	if err != nil {
		s.metrics.ObserveCheckout(metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	if len(entries) == 0 {
		s.metrics.ObserveCheckout(metrics.OutcomeEmptyCart, time.Since(start))
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart has no selected items")
	}

	orderID := helpers.NewOrderID(s.now(), userID)
	ctx = s.logg.WithOrderID(ctx, orderID)

	var (
		placed  *models.OrderInfo
		pending []inventory.SalesBump
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		pending = pending[:0]
		repo := s.orders.WithTx(tx)

		order, err := repo.CreateOrder(ctx, &models.OrderInfo{
			OrderID:     orderID,
			UserID:      userID,
			AddressID:   addressID,
			TotalAmount: decimal.Zero,
			Freight:     s.freight,
			PayMethod:   payMethod,
			Status:      payMethod.InitialOrderStatus(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		var totals helpers.Totals
		items := make([]models.OrderGoods, 0, len(entries))
		for _, entry := range entries {
			dec, err := s.ledger.ConditionalDecrement(ctx, tx, entry.SKUID, entry.Count)
			if err != nil {
				return err
			}
			if dec.PendingSales != nil {
				pending = append(pending, *dec.PendingSales)
			}
			totals.Add(dec.Price, entry.Count)
			items = append(items, models.OrderGoods{
				OrderID: orderID,
				SKUID:   entry.SKUID,
				Count:   entry.Count,
				Price:   dec.Price,
			})
		}

		if err := repo.CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		if err := repo.UpdateTotals(ctx, orderID, totals.Count, totals.Amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order totals")
		}
		order.TotalCount = totals.Count
		order.TotalAmount = totals.Amount
		order.Items = items

		if err := s.emitOrderCreated(ctx, tx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
		}
		placed = order
		return nil
	})
	if err != nil {
		s.observeFailure(ctx, err, time.Since(start))
		return nil, err
	}

	if len(pending) > 0 {
		s.ledger.ReplaySales(ctx, s.tx.DB(), pending)
	}

	purchased := make([]int64, 0, len(entries))
	for _, entry := range entries {
		purchased = append(purchased, entry.SKUID)
	}
	if err := s.cart.Clear(ctx, userID, purchased); err != nil {
		s.logg.Error(ctx, "order placed but purchased cart entries were not cleared", err)
	}

	s.metrics.ObserveCheckout(metrics.OutcomeSuccess, time.Since(start))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"total_count":  placed.TotalCount,
		"total_amount": placed.TotalAmount.String(),
		"pay_method":   placed.PayMethod,
	})
	s.logg.Info(logCtx, "order placed")

	dto := orders.NewOrderDTO(placed)
	return &dto, nil
}

// Preview prices the selected entries from the current catalog and adds the
// configured freight. Nothing is written.
func (s *service) Preview(ctx context.Context, userID int64) (*Settlement, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	entries, err := s.cart.ListSelected(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.SKUID)
	}
	skus, err := s.catalog.FindSKUs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var totals helpers.Totals
	items := make([]SettlementItem, 0, len(entries))
	for _, entry := range entries {
		sku, ok := skus[entry.SKUID]
		if !ok {
			continue
		}
		items = append(items, SettlementItem{
			SKUID:  entry.SKUID,
			Name:   sku.Name,
			Price:  sku.Price,
			Count:  entry.Count,
			Amount: totals.Add(sku.Price, entry.Count),
		})
	}

	return &Settlement{
		Items:         items,
		TotalCount:    totals.Count,
		TotalAmount:   totals.Amount,
		Freight:       s.freight,
		PaymentAmount: totals.PaymentAmount(s.freight),
	}, nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.OrderInfo) error {
	items := make([]payloads.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderItem{SKUID: item.SKUID, Count: item.Count, Price: item.Price})
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.OrderID,
		Actor:         &outbox.ActorRef{UserID: order.UserID},
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.OrderID,
			UserID:      order.UserID,
			TotalCount:  order.TotalCount,
			TotalAmount: order.TotalAmount,
			Freight:     order.Freight,
			PayMethod:   order.PayMethod,
			Status:      order.Status,
			Items:       items,
		},
		Version: 1,
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) observeFailure(ctx context.Context, err error, elapsed time.Duration) {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		outcome = metrics.OutcomeInsufficientStock
	case errors.Is(err, inventory.ErrContention):
		outcome = metrics.OutcomeContention
	}
	s.metrics.ObserveCheckout(outcome, elapsed)

	logCtx := s.logg.WithField(ctx, "outcome", outcome)
	if outcome == metrics.OutcomeError {
		s.logg.Error(logCtx, "checkout rolled back", err)
		return
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Details() != nil {
		logCtx = s.logg.WithField(logCtx, "details", typed.Details())
	}
	s.logg.Warn(logCtx, "checkout rolled back")
}
