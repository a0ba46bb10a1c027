package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment links an order to the gateway trade that settled it.
type Payment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   string    `gorm:"column:order_id;size:64;not null;uniqueIndex:ux_payments_order"`
	TradeID   string    `gorm:"column:trade_id;size:100;not null;uniqueIndex:ux_payments_trade"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
