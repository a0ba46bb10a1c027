package orders

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
)

// Repository defines persistence operations for orders, their line items and
// payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.OrderInfo) (*models.OrderInfo, error)
	CreateLineItems(ctx context.Context, items []models.OrderGoods) error
	UpdateTotals(ctx context.Context, orderID string, totalCount int, totalAmount decimal.Decimal) error
	FindOrder(ctx context.Context, orderID string) (*models.OrderInfo, error)
	FindUserOrder(ctx context.Context, userID int64, orderID string) (*models.OrderInfo, error)
	UpdateStatusIf(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error)
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error)
}
