package repository

import (
	"context"
	"errors"

	"simmarket/internal/model"

	"gorm.io/gorm"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) Create(ctx context.Context, tx *gorm.DB, pkg *model.Package) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(pkg).Error
}

func (r *PackageRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Package, error) {
	if tx == nil {
		tx = r.db
	}
	var pkg model.Package
	err := tx.WithContext(ctx).Where("id = ?", id).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) List(ctx context.Context) ([]*model.Package, error) {
	var pkgs []*model.Package
	err := r.db.WithContext(ctx).Order("price ASC").Find(&pkgs).Error
	return pkgs, err
}

func (r *PackageRepository) Save(ctx context.Context, tx *gorm.DB, pkg *model.Package) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Package{}).
		Where("id = ?", pkg.ID).
		Updates(map[string]interface{}{
			"name":          pkg.Name,
			"price":         pkg.Price,
			"duration_days": pkg.DurationDays,
			"listing_limit": pkg.ListingLimit,
			"description":   pkg.Description,
		}).Error
}
