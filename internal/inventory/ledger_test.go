package inventory

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/internal/catalog"
	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db/models"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Goods{}, &models.SKU{}))
	return db
}

func seedSKU(t *testing.T, db *gorm.DB, skuID, goodsID int64, stock int, price string) {
	t.Helper()
	if goodsID > 0 {
		require.NoError(t, db.FirstOrCreate(&models.Goods{ID: goodsID, Name: "goods"}, models.Goods{ID: goodsID}).Error)
	}
	require.NoError(t, db.Create(&models.SKU{
		ID:         skuID,
		GoodsID:    goodsID,
		Name:       "sku",
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsLaunched: true,
	}).Error)
}

func loadSKU(t *testing.T, db *gorm.DB, id int64) models.SKU {
	t.Helper()
	var sku models.SKU
	require.NoError(t, db.First(&sku, "id = ?", id).Error)
	return sku
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
}

func newTestLedger(t *testing.T, store stockStore, attempts int) *Ledger {
	t.Helper()
	l, err := newLedger(store, config.CheckoutConfig{MaxStockAttempts: attempts, SalesRetries: 2}, testLogger(), nil)
	require.NoError(t, err)
	return l
}

func TestConditionalDecrementSucceeds(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "12.50")
	ledger := newTestLedger(t, gormStore{}, 4)

	var dec *Decrement
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		dec, err = ledger.ConditionalDecrement(context.Background(), tx, 1, 2)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 3, dec.NewStock)
	require.Equal(t, 1, dec.Attempts)
	require.True(t, dec.Price.Equal(decimal.RequireFromString("12.50")))
	require.Nil(t, dec.PendingSales)

	sku := loadSKU(t, db, 1)
	require.Equal(t, 3, sku.Stock)
	require.Equal(t, 2, sku.Sales)

	var goods models.Goods
	require.NoError(t, db.First(&goods, "id = ?", 100).Error)
	require.Equal(t, int64(2), goods.Sales)
}

func TestConditionalDecrementInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 2, "3.00")
	ledger := newTestLedger(t, gormStore{}, 4)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.ConditionalDecrement(context.Background(), tx, 1, 3)
		return err
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientStock))
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, int64(1), insufficient.SKUID)
	require.Equal(t, 2, insufficient.Available)

	sku := loadSKU(t, db, 1)
	require.Equal(t, 2, sku.Stock)
	require.Equal(t, 0, sku.Sales)
}

func TestConditionalDecrementValidatesInput(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(t, gormStore{}, 4)

	_, err := ledger.ConditionalDecrement(context.Background(), db, 1, 0)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ledger.ConditionalDecrement(context.Background(), nil, 1, 1)
	require.Error(t, err)

	_, err = ledger.ConditionalDecrement(context.Background(), db, 404, 1)
	require.True(t, errors.Is(err, catalog.ErrSKUNotFound))
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

// racingStore commits a competing decrement between the read and the
// conditional write of the first n attempts.
type racingStore struct {
	gormStore
	steal int
	races int
	reads int
}

func (r *racingStore) Read(ctx context.Context, tx *gorm.DB, skuID int64) (*models.SKU, error) {
	sku, err := r.gormStore.Read(ctx, tx, skuID)
	if err != nil {
		return nil, err
	}
	r.reads++
	if r.races > 0 {
		r.races--
		if err := tx.Exec("UPDATE skus SET stock = stock - ?, sales = sales + ? WHERE id = ?", r.steal, r.steal, skuID).Error; err != nil {
			return nil, err
		}
	}
	return sku, nil
}

func TestConditionalDecrementRetriesLostRace(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "1.00")
	store := &racingStore{steal: 1, races: 1}
	ledger := newTestLedger(t, store, 4)

	var dec *Decrement
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		dec, err = ledger.ConditionalDecrement(context.Background(), tx, 1, 2)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, dec.Attempts)
	require.Equal(t, 2, store.reads)

	sku := loadSKU(t, db, 1)
	require.Equal(t, 2, sku.Stock, "competing writer took 1, checkout took 2")
	require.Equal(t, 3, sku.Sales)
}

func TestConditionalDecrementReportsShortfallAfterRace(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 3, "1.00")
	store := &racingStore{steal: 2, races: 1}
	ledger := newTestLedger(t, store, 4)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.ConditionalDecrement(context.Background(), tx, 1, 2)
		return err
	})
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, 1, insufficient.Available)
}

type alwaysLosingStore struct {
	gormStore
	writes int
}

func (a *alwaysLosingStore) CompareAndSwap(context.Context, *gorm.DB, int64, int, int, int) (bool, error) {
	a.writes++
	return false, nil
}

func TestConditionalDecrementSurfacesContention(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "1.00")
	store := &alwaysLosingStore{}
	ledger := newTestLedger(t, store, 3)

	_, err := ledger.ConditionalDecrement(context.Background(), db, 1, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrContention))
	require.Equal(t, pkgerrors.CodeContention, pkgerrors.As(err).Code())
	require.Equal(t, 3, store.writes)
	require.Equal(t, 5, loadSKU(t, db, 1).Stock)
}

func TestConditionalDecrementStopsOnCanceledContext(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "1.00")
	ledger := newTestLedger(t, gormStore{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ledger.ConditionalDecrement(ctx, db, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGoodsSalesFailureIsDeferred(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 0, 5, "1.00")
	require.NoError(t, db.Model(&models.SKU{}).Where("id = ?", 1).Update("goods_id", 777).Error)
	ledger := newTestLedger(t, gormStore{}, 3)

	var dec *Decrement
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		dec, err = ledger.ConditionalDecrement(context.Background(), tx, 1, 2)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, dec.PendingSales)
	require.Equal(t, SalesBump{GoodsID: 777, Quantity: 2}, *dec.PendingSales)
	require.Equal(t, 3, loadSKU(t, db, 1).Stock, "stock write survives the failed sales bump")

	require.NoError(t, db.Create(&models.Goods{ID: 777, Name: "late"}).Error)
	ledger.ReplaySales(context.Background(), db, []SalesBump{*dec.PendingSales})

	var goods models.Goods
	require.NoError(t, db.First(&goods, "id = ?", 777).Error)
	require.Equal(t, int64(2), goods.Sales)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 10, "1.00")
	ledger := newTestLedger(t, gormStore{}, 8)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				_, err := ledger.ConditionalDecrement(context.Background(), tx, 1, 1)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	sku := loadSKU(t, db, 1)
	require.Equal(t, 0, sku.Stock)
	require.Equal(t, 10, sku.Sales)
}

func TestNewLedgerDefaults(t *testing.T) {
	l, err := NewLedger(config.CheckoutConfig{}, testLogger(), nil)
	require.NoError(t, err)
	require.Equal(t, defaultMaxAttempts, l.maxAttempts)
	require.Equal(t, defaultSalesRetries, l.salesRetries)

	_, err = NewLedger(config.CheckoutConfig{}, nil, nil)
	require.Error(t, err)
}

func TestReconcileGoodsSalesOnlyRaisesLaggingCounters(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 10, "1.00")
	seedSKU(t, db, 2, 100, 10, "1.00")
	seedSKU(t, db, 3, 200, 10, "1.00")
	require.NoError(t, db.Model(&models.SKU{}).Where("id IN ?", []int64{1, 2}).Update("sales", 4).Error)
	require.NoError(t, db.Model(&models.SKU{}).Where("id = ?", 3).Update("sales", 1).Error)
	require.NoError(t, db.Model(&models.Goods{}).Where("id = ?", 200).Update("sales", 9).Error)
	ledger := newTestLedger(t, gormStore{}, 3)

	fixed, err := ledger.ReconcileGoodsSales(context.Background(), db)
	require.NoError(t, err)
	require.EqualValues(t, 1, fixed)

	var goods []models.Goods
	require.NoError(t, db.Order("id").Find(&goods).Error)
	require.Len(t, goods, 2)
	require.EqualValues(t, 8, goods[0].Sales)
	require.EqualValues(t, 9, goods[1].Sales)

	fixed, err = ledger.ReconcileGoodsSales(context.Background(), db)
	require.NoError(t, err)
	require.Zero(t, fixed)
}

func TestReconcileGoodsSalesRequiresTx(t *testing.T) {
	ledger := newTestLedger(t, gormStore{}, 3)
	_, err := ledger.ReconcileGoodsSales(context.Background(), nil)
	require.Error(t, err)
}

func TestConditionalDecrementRejectsDelistedSKU(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "1.00")
	require.NoError(t, db.Model(&models.SKU{}).Where("id = ?", 1).Update("is_launched", false).Error)
	ledger := newTestLedger(t, gormStore{}, 3)

	_, err := ledger.ConditionalDecrement(context.Background(), db, 1, 1)
	require.ErrorIs(t, err, catalog.ErrSKUNotFound)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	require.Equal(t, 5, loadSKU(t, db, 1).Stock)
}

func TestReplaySalesAfterReconcileDoesNotDoubleCount(t *testing.T) {
	db := newTestDB(t)
	seedSKU(t, db, 1, 100, 5, "1.00")
	ledger := newTestLedger(t, gormStore{}, 3)

	// sku sales already carry the committed decrement; the goods bump was deferred.
	require.NoError(t, db.Model(&models.SKU{}).Where("id = ?", 1).Update("sales", 2).Error)
	_, err := ledger.ReconcileGoodsSales(context.Background(), db)
	require.NoError(t, err)

	ledger.ReplaySales(context.Background(), db, []SalesBump{{GoodsID: 100, Quantity: 2}})

	var goods models.Goods
	require.NoError(t, db.First(&goods, "id = ?", 100).Error)
	require.EqualValues(t, 2, goods.Sales)
}
