package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meiduo/mall-backend/pkg/enums"
)

// OrderItem is one purchased line as published downstream.
type OrderItem struct {
	SKUID int64           `json:"sku_id"`
	Count int             `json:"count"`
	Price decimal.Decimal `json:"price"`
}

// OrderCreatedEvent is queued in the same transaction that places an order.
type OrderCreatedEvent struct {
	OrderID     string            `json:"order_id"`
	UserID      int64             `json:"user_id"`
	TotalCount  int               `json:"total_count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Freight     decimal.Decimal   `json:"freight"`
	PayMethod   enums.PayMethod   `json:"pay_method"`
	Status      enums.OrderStatus `json:"status"`
	Items       []OrderItem       `json:"items"`
}

// OrderPaidEvent is queued when a gateway payment is confirmed.
type OrderPaidEvent struct {
	OrderID string    `json:"order_id"`
	UserID  int64     `json:"user_id"`
	TradeID string    `json:"trade_id"`
	PaidAt  time.Time `json:"paid_at"`
}

func (e *OrderCreatedEvent) OrderKey() string { return e.OrderID }

func (e *OrderPaidEvent) OrderKey() string { return e.OrderID }
