package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/pkg/db/models"
)

var errGoodsNotFound = errors.New("goods not found")

type gormStore struct{}

// Read loads the current counters for a launched sku through the caller's
// transaction. Delisted skus read as not found.
func (gormStore) Read(ctx context.Context, tx *gorm.DB, skuID int64) (*models.SKU, error) {
	var sku models.SKU
	err := tx.WithContext(ctx).
		Select("id", "goods_id", "price", "stock", "sales").
		Where("id = ? AND is_launched = ?", skuID, true).
		Take(&sku).Error
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

// CompareAndSwap writes the new counters only if stock still equals expectedStock.
func (gormStore) CompareAndSwap(ctx context.Context, tx *gorm.DB, skuID int64, expectedStock, newStock, newSales int) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.SKU{}).
		Where("id = ? AND stock = ?", skuID, expectedStock).
		Updates(map[string]any{
			"stock": newStock,
			"sales": newSales,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (gormStore) IncrementGoodsSales(ctx context.Context, tx *gorm.DB, goodsID int64, qty int) error {
	res := tx.WithContext(ctx).
		Model(&models.Goods{}).
		Where("id = ?", goodsID).
		UpdateColumn("sales", gorm.Expr("sales + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("goods %d: %w", goodsID, errGoodsNotFound)
	}
	return nil
}

const skuSalesSumSQL = `(SELECT COALESCE(SUM(s.sales), 0) FROM skus s WHERE s.goods_id = goods.id)`

// CatchUpGoodsSales adds qty to a goods counter without passing the sum of
// its skus, so a bump that lands after a reconcile run is not counted twice.
func (gormStore) CatchUpGoodsSales(ctx context.Context, tx *gorm.DB, goodsID int64, qty int) error {
	db := tx.WithContext(ctx)
	res := db.Model(&models.Goods{}).
		Where("id = ? AND sales < "+skuSalesSumSQL, goodsID).
		UpdateColumn("sales", gorm.Expr(
			"CASE WHEN sales + ? < "+skuSalesSumSQL+" THEN sales + ? ELSE "+skuSalesSumSQL+" END", qty, qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.Model(&models.Goods{}).Where("id = ?", goodsID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("goods %d: %w", goodsID, errGoodsNotFound)
	}
	return nil
}

const raiseGoodsSalesSQL = `
UPDATE goods SET sales = (SELECT COALESCE(SUM(s.sales), 0) FROM skus s WHERE s.goods_id = goods.id)
WHERE sales < (SELECT COALESCE(SUM(s.sales), 0) FROM skus s WHERE s.goods_id = goods.id)`

// RaiseGoodsSales lifts every goods counter that trails the sum of its skus.
// Counters are never lowered.
func (gormStore) RaiseGoodsSales(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := tx.WithContext(ctx).Exec(raiseGoodsSalesSQL)
	return res.RowsAffected, res.Error
}
