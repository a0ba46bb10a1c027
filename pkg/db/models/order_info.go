package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meiduo/mall-backend/pkg/enums"
)

// OrderInfo is the persisted result of a successful checkout.
type OrderInfo struct {
	OrderID     string            `gorm:"column:order_id;primaryKey;size:64"`
	UserID      int64             `gorm:"column:user_id;not null;index"`
	AddressID   int64             `gorm:"column:address_id;not null"`
	TotalCount  int               `gorm:"column:total_count;not null;default:0"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:decimal(10,2);not null"`
	Freight     decimal.Decimal   `gorm:"column:freight;type:decimal(10,2);not null"`
	PayMethod   enums.PayMethod   `gorm:"column:pay_method;type:varchar(32);not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:varchar(32);not null;index"`
	Items       []OrderGoods      `gorm:"foreignKey:OrderID;references:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderInfo) TableName() string { return "orders" }
