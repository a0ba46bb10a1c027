package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
)

// OrderDTO is the order shape returned to clients.
type OrderDTO struct {
	OrderID     string            `json:"order_id"`
	UserID      int64             `json:"user_id"`
	AddressID   int64             `json:"address_id"`
	TotalCount  int               `json:"total_count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Freight     decimal.Decimal   `json:"freight"`
	PayMethod   enums.PayMethod   `json:"pay_method"`
	Status      enums.OrderStatus `json:"status"`
	Items       []LineItemDTO     `json:"items"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LineItemDTO is one purchased sku with its captured price.
type LineItemDTO struct {
	SKUID    int64           `json:"sku_id"`
	Count    int             `json:"count"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// PaymentDTO is returned once a payment is confirmed.
type PaymentDTO struct {
	OrderID string `json:"order_id"`
	TradeID string `json:"trade_id"`
}

// NewOrderDTO maps the persisted order and its items.
func NewOrderDTO(order *models.OrderInfo) OrderDTO {
	items := make([]LineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemDTO{
			SKUID:    item.SKUID,
			Count:    item.Count,
			Price:    item.Price,
			Subtotal: item.Subtotal(),
		})
	}
	return OrderDTO{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		AddressID:   order.AddressID,
		TotalCount:  order.TotalCount,
		TotalAmount: order.TotalAmount,
		Freight:     order.Freight,
		PayMethod:   order.PayMethod,
		Status:      order.Status,
		Items:       items,
		CreatedAt:   order.CreatedAt,
	}
}
