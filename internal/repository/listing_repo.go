package repository

import (
	"context"
	"errors"

	"simmarket/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *ListingRepository) Create(ctx context.Context, tx *gorm.DB, listing *model.Listing) error {
	return r.conn(tx).WithContext(ctx).Create(listing).Error
}

func (r *ListingRepository) GetByID(ctx context.Context, tx *gorm.DB, id string, forUpdate bool) (*model.Listing, error) {
	var listing model.Listing
	q := r.conn(tx).WithContext(ctx).
		Preload("Bids", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// Save 乐观锁更新挂单，并插入新出价
func (r *ListingRepository) Save(ctx context.Context, tx *gorm.DB, listing *model.Listing) error {
	db := r.conn(tx).WithContext(ctx)

	result := db.Model(&model.Listing{}).
		Where("id = ? AND version = ?", listing.ID, listing.Version).
		Updates(map[string]interface{}{
			"price":             listing.Price,
			"status":            listing.Status,
			"buyer_id":          listing.BuyerID,
			"sold_at":           listing.SoldAt,
			"auction_end_time":  listing.AuctionEndTime,
			"current_bid":       listing.CurrentBid,
			"highest_bidder_id": listing.HighestBidderID,
			"version":           gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, listing.ID, false); err != nil {
			return err
		}
		return ErrOptimisticLock
	}
	listing.Version++

	for i := range listing.Bids {
		bid := &listing.Bids[i]
		if bid.ID != 0 {
			continue
		}
		bid.ListingID = listing.ID
		if err := db.Create(bid).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *ListingRepository) CountAvailable(ctx context.Context, tx *gorm.DB, sellerID int64) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.Listing{}).
		Where("seller_id = ? AND status = ?", sellerID, model.ListingStatusAvailable).
		Count(&count).Error
	return count, err
}

func (r *ListingRepository) List(ctx context.Context, filter ListingFilter) ([]*model.Listing, int64, error) {
	var listings []*model.Listing
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Listing{})
	if filter.SellerID != 0 {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error

	return listings, total, err
}
