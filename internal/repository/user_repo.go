package repository

import (
	"context"
	"errors"

	"simmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	return r.conn(tx).WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64, forUpdate bool) (*model.User, error) {
	var user model.User
	q := r.conn(tx).WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Save 按版本号更新余额与套餐，余额为负时数据库条件也会拒绝
func (r *UserRepository) Save(ctx context.Context, tx *gorm.DB, user *model.User) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"name":               user.Name,
			"role":               user.Role,
			"wallet_balance":     user.WalletBalance,
			"blocked_balance":    user.BlockedBalance,
			"package_id":         user.PackageID,
			"package_expires_at": user.PackageExpiresAt,
			"version":            gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, user.ID, false); err != nil {
			return err
		}
		return ErrOptimisticLock
	}

	user.Version++
	return nil
}

// ListWithHeldFunds 对账用：冻结余额不为 0，或者名下还有 ACTIVE 冻结单
func (r *UserRepository) ListWithHeldFunds(ctx context.Context, limit int) ([]*model.User, error) {
	var users []*model.User
	holders := r.db.Model(&model.Hold{}).
		Select("user_id").
		Where("status = ?", model.HoldStatusActive)
	err := r.db.WithContext(ctx).
		Where("blocked_balance > 0 OR id IN (?)", holders).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *UserRepository) List(ctx context.Context, page, pageSize int) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	query := r.db.WithContext(ctx).Model(&model.User{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize = normalizePage(page, pageSize)
	err := query.
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error

	return users, total, err
}
