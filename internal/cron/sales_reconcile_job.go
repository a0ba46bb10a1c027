package cron

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type salesReconciler interface {
	ReconcileGoodsSales(ctx context.Context, tx *gorm.DB) (int64, error)
}

// NewSalesReconcileJob repairs goods sales counters that missed a
// post-checkout bump.
func NewSalesReconcileJob(db txRunner, ledger salesReconciler) (Job, error) {
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &salesReconcileJob{db: db, ledger: ledger}, nil
}

type salesReconcileJob struct {
	db     txRunner
	ledger salesReconciler
}

func (j *salesReconcileJob) Name() string { return "goods-sales-reconcile" }

func (j *salesReconcileJob) Run(ctx context.Context) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := j.ledger.ReconcileGoodsSales(ctx, tx)
		return err
	})
}
