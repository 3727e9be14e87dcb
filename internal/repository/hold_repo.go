package repository

import (
	"context"

	"simmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HoldRepository struct {
	db *gorm.DB
}

func NewHoldRepository(db *gorm.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

func (r *HoldRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *HoldRepository) GetActiveByListing(ctx context.Context, tx *gorm.DB, listingID string, forUpdate bool) ([]*model.Hold, error) {
	var holds []*model.Hold
	q := r.conn(tx).WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("listing_id = ? AND status = ?", listingID, model.HoldStatusActive).
		Order("id ASC").
		Find(&holds).Error
	return holds, err
}

func (r *HoldRepository) SumActiveByUser(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	var sum int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.Hold{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status = ?", userID, model.HoldStatusActive).
		Scan(&sum).Error
	return sum, err
}

func (r *HoldRepository) Save(ctx context.Context, tx *gorm.DB, hold *model.Hold) error {
	db := r.conn(tx).WithContext(ctx)
	if hold.ID == 0 {
		return db.Create(hold).Error
	}
	return db.Model(&model.Hold{}).
		Where("id = ?", hold.ID).
		Updates(map[string]interface{}{
			"amount": hold.Amount,
			"status": hold.Status,
		}).Error
}
