package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderGoods captures one purchased SKU and the price observed when its stock
// was decremented.
type OrderGoods struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   string          `gorm:"column:order_id;size:64;not null;uniqueIndex:ux_order_goods_order_sku"`
	SKUID     int64           `gorm:"column:sku_id;not null;uniqueIndex:ux_order_goods_order_sku"`
	Count     int             `gorm:"column:count;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(10,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderGoods) TableName() string { return "order_goods" }

// BeforeCreate assigns a client-side id so inserts work on every dialect.
func (g *OrderGoods) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Subtotal is count times the captured unit price.
func (g OrderGoods) Subtotal() decimal.Decimal {
	return g.Price.Mul(decimal.NewFromInt(int64(g.Count)))
}
