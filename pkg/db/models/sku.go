package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goods is the product family an SKU belongs to; it carries the aggregate
// sales counter.
type Goods struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;not null"`
	Sales     int64     `gorm:"column:sales;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Goods) TableName() string { return "goods" }

// SKU is the sellable unit and the inventory record for it.
type SKU struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	GoodsID    int64           `gorm:"column:goods_id;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(10,2);not null"`
	Stock      int             `gorm:"column:stock;not null;default:0"`
	Sales      int             `gorm:"column:sales;not null;default:0"`
	IsLaunched bool            `gorm:"column:is_launched;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (SKU) TableName() string { return "skus" }
