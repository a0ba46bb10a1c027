package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/internal/catalog"
	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db"
	"github.com/meiduo/mall-backend/pkg/db/models"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/metrics"
)

const (
	defaultMaxAttempts  = 16
	defaultSalesRetries = 3
)

type stockStore interface {
	Read(ctx context.Context, tx *gorm.DB, skuID int64) (*models.SKU, error)
	CompareAndSwap(ctx context.Context, tx *gorm.DB, skuID int64, expectedStock, newStock, newSales int) (bool, error)
	IncrementGoodsSales(ctx context.Context, tx *gorm.DB, goodsID int64, qty int) error
	CatchUpGoodsSales(ctx context.Context, tx *gorm.DB, goodsID int64, qty int) error
	RaiseGoodsSales(ctx context.Context, tx *gorm.DB) (int64, error)
}

// Decrement is the outcome of a successful conditional decrement.
type Decrement struct {
	SKUID    int64
	GoodsID  int64
	Quantity int
	NewStock int
	// Price is the unit price read in the same attempt that won the write.
	Price    decimal.Decimal
	Attempts int
	// PendingSales is set when the goods sales bump failed inside the
	// transaction and must be replayed after commit.
	PendingSales *SalesBump
}

// SalesBump is a deferred increment of a goods aggregate sales counter.
type SalesBump struct {
	GoodsID  int64
	Quantity int
}

// Ledger owns every mutation of sku stock and sales.
type Ledger struct {
	store        stockStore
	logg         *logger.Logger
	metrics      *metrics.CheckoutMetrics
	maxAttempts  int
	salesRetries int
	savepoints   atomic.Uint64
}

// NewLedger builds a ledger from the checkout config. metrics may be nil.
func NewLedger(cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Ledger, error) {
	return newLedger(gormStore{}, cfg, logg, m)
}

func newLedger(store stockStore, cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("stock store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := cfg.MaxStockAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	salesRetries := cfg.SalesRetries
	if salesRetries <= 0 {
		salesRetries = defaultSalesRetries
	}
	return &Ledger{
		store:        store,
		logg:         logg,
		metrics:      m,
		maxAttempts:  maxAttempts,
		salesRetries: salesRetries,
	}, nil
}

// ConditionalDecrement removes qty units of skuID inside tx. Each attempt
// reads stock and writes stock-qty guarded by the value it read; a lost race
// re-reads immediately. The loop never sleeps.
func (l *Ledger) ConditionalDecrement(ctx context.Context, tx *gorm.DB, skuID int64, qty int) (*Decrement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"sku_id": skuID, "quantity": qty})
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sku, err := l.store.Read(ctx, tx, skuID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, catalog.ErrSKUNotFound, "sku not found").
					WithDetails(map[string]any{"sku_id": skuID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock")
		}

		if sku.Stock < qty {
			cause := &InsufficientStockError{SKUID: skuID, Requested: qty, Available: sku.Stock}
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "insufficient stock").
				WithDetails(map[string]any{
					"sku_id":    skuID,
					"requested": qty,
					"available": sku.Stock,
				})
		}

		swapped, err := l.store.CompareAndSwap(ctx, tx, skuID, sku.Stock, sku.Stock-qty, sku.Sales+qty)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write stock")
		}
		if !swapped {
			l.metrics.IncCASRetry()
			continue
		}

		dec := &Decrement{
			SKUID:    skuID,
			GoodsID:  sku.GoodsID,
			Quantity: qty,
			NewStock: sku.Stock - qty,
			Price:    sku.Price,
			Attempts: attempt,
		}
		dec.PendingSales = l.bumpGoodsSales(ctx, tx, sku.GoodsID, qty)
		return dec, nil
	}

	l.metrics.IncContention()
	logCtx := l.logg.WithFields(ctx, map[string]any{"sku_id": skuID, "attempts": l.maxAttempts})
	l.logg.Warn(logCtx, "stock decrement abandoned after exhausting retries")
	return nil, pkgerrors.Wrap(pkgerrors.CodeContention, ErrContention, "stock is being updated concurrently, retry the checkout").
		WithDetails(map[string]any{"sku_id": skuID, "attempts": l.maxAttempts})
}

// bumpGoodsSales runs inside a savepoint so a failure leaves the stock write
// intact. The failed bump is returned for replay after commit.
func (l *Ledger) bumpGoodsSales(ctx context.Context, tx *gorm.DB, goodsID int64, qty int) *SalesBump {
	name := fmt.Sprintf("goods_sales_%d", l.savepoints.Add(1))
	err := db.Savepoint(tx, name, func(tx *gorm.DB) error {
		return l.store.IncrementGoodsSales(ctx, tx, goodsID, qty)
	})
	if err != nil {
		l.warnSales(ctx, goodsID, qty, "goods sales update failed, deferred until after commit", err)
		return &SalesBump{GoodsID: goodsID, Quantity: qty}
	}
	return nil
}

// ReplaySales applies deferred goods sales bumps outside the checkout
// transaction. A counter already raised by ReconcileGoodsSales absorbs the
// bump. Each bump is retried a bounded number of times and then logged.
func (l *Ledger) ReplaySales(ctx context.Context, db *gorm.DB, bumps []SalesBump) {
	for _, bump := range bumps {
		var err error
		for attempt := 0; attempt < l.salesRetries; attempt++ {
			if err = l.store.CatchUpGoodsSales(ctx, db, bump.GoodsID, bump.Quantity); err == nil {
				break
			}
		}
		if err != nil {
			logCtx := l.logg.WithFields(ctx, map[string]any{
				"goods_id": bump.GoodsID,
				"quantity": bump.Quantity,
				"retries":  l.salesRetries,
			})
			l.logg.Error(logCtx, "goods sales counter left behind", err)
		}
	}
}

// ReconcileGoodsSales catches up goods sales counters whose bumps were lost
// after commit. It returns the number of goods rows corrected.
func (l *Ledger) ReconcileGoodsSales(ctx context.Context, tx *gorm.DB) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	fixed, err := l.store.RaiseGoodsSales(ctx, tx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile goods sales")
	}
	if fixed > 0 {
		l.logg.Warn(l.logg.WithField(ctx, "goods_fixed", fixed), "goods sales counters reconciled")
	}
	return fixed, nil
}

func (l *Ledger) warnSales(ctx context.Context, goodsID int64, qty int, msg string, err error) {
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"goods_id": goodsID,
		"quantity": qty,
		"error":    err.Error(),
	})
	l.logg.Warn(logCtx, msg)
}
