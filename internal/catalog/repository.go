package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meiduo/mall-backend/internal/repo"
	"github.com/meiduo/mall-backend/pkg/db/models"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
)

// ErrSKUNotFound is returned when a sku id does not resolve to a launched sku.
var ErrSKUNotFound = errors.New("sku not found")

// Repository is the read side of the catalog used by cart and checkout.
type Repository interface {
	FindSKU(ctx context.Context, id int64) (*models.SKU, error)
	FindSKUs(ctx context.Context, ids []int64) (map[int64]models.SKU, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindSKU(ctx context.Context, id int64) (*models.SKU, error) {
	var sku models.SKU
	err := r.DB(ctx).
		Where("id = ? AND is_launched = ?", id, true).
		First(&sku).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSKUNotFound, "sku not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sku")
	}
	return &sku, nil
}

// FindSKUs returns launched skus keyed by id; unknown ids are simply absent.
func (r *repository) FindSKUs(ctx context.Context, ids []int64) (map[int64]models.SKU, error) {
	out := make(map[int64]models.SKU, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.SKU
	err := r.DB(ctx).
		Where("id IN ? AND is_launched = ?", ids, true).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load skus")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.SKU{}).
		Where("id = ? AND is_launched = ?", id, true).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check sku")
	}
	return count > 0, nil
}
