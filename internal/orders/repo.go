package orders

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/internal/repo"
	"github.com/meiduo/mall-backend/pkg/db/models"
	"github.com/meiduo/mall-backend/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// CreateOrder inserts the order shell. Line items are written separately.
func (r *repository) CreateOrder(ctx context.Context, order *models.OrderInfo) (*models.OrderInfo, error) {
	if err := r.DB(ctx).Omit("Items").Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderGoods) error {
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *repository) UpdateTotals(ctx context.Context, orderID string, totalCount int, totalAmount decimal.Decimal) error {
	res := r.DB(ctx).
		Model(&models.OrderInfo{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"total_count":  totalCount,
			"total_amount": totalAmount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindOrder(ctx context.Context, orderID string) (*models.OrderInfo, error) {
	var order models.OrderInfo
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindUserOrder(ctx context.Context, userID int64, orderID string) (*models.OrderInfo, error) {
	var order models.OrderInfo
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sku_id ASC")
		}).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatusIf moves the order to `to` only while it is still in `from`.
func (r *repository) UpdateStatusIf(ctx context.Context, orderID string, from, to enums.OrderStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.OrderInfo{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.DB(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
