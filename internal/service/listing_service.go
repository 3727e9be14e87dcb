package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"

	"github.com/google/uuid"
)

type ListingService struct {
	*core
}

func NewListingService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *ListingService {
	return &ListingService{core: newCore(repo, locker, clk, cfg, "listing")}
}

type CreateListingRequest struct {
	SellerID       int64      `json:"seller_id" binding:"required"`
	Number         string     `json:"number" binding:"required"`
	Carrier        string     `json:"carrier"`
	Type           string     `json:"type" binding:"required"`
	Price          int64      `json:"price"`
	IsRond         bool       `json:"is_rond"`
	InquiryPhone   string     `json:"inquiry_phone"`
	AuctionEndTime *time.Time `json:"auction_end_time"`
	StartingBid    int64      `json:"starting_bid"`
}

// QuotaInfo 卖家当前的挂单额度
type QuotaInfo struct {
	SellerID  int64 `json:"seller_id"`
	PackageID int64 `json:"package_id,omitempty"`
	Active    int64 `json:"active"`
	Limit     int64 `json:"limit"`
	CanList   bool  `json:"can_list"`
}

// quota 在售数 >= 套餐上限即不可再挂单；无套餐或套餐过期上限为 0
func (s *ListingService) quota(ctx context.Context, st repository.Store, seller *model.User) (*QuotaInfo, error) {
	info := &QuotaInfo{SellerID: seller.ID}

	if pkgID, ok := seller.ActivePackageID(s.clock.Now()); ok {
		pkg, err := st.GetPackage(ctx, pkgID)
		if err != nil {
			return nil, storeErr(err, "查询套餐失败")
		}
		info.PackageID = pkg.ID
		info.Limit = int64(pkg.ListingLimit)
	}

	count, err := st.CountAvailableListings(ctx, seller.ID)
	if err != nil {
		return nil, storeErr(err, "统计在售挂单失败")
	}
	info.Active = count
	info.CanList = count < info.Limit
	return info, nil
}

// CanList 额度不足时返回 ErrQuotaExceeded，QuotaInfo 仍然返回
func (s *ListingService) CanList(ctx context.Context, sellerID int64) (*QuotaInfo, error) {
	seller, err := s.repo.GetUser(ctx, sellerID)
	if err != nil {
		return nil, storeErr(err, "查询卖家失败")
	}
	info, err := s.quota(ctx, s.repo, seller)
	if err != nil {
		return nil, err
	}
	if !info.CanList {
		return info, fmt.Errorf("%w: 在售 %d，上限 %d", ErrQuotaExceeded, info.Active, info.Limit)
	}
	return info, nil
}

func (s *ListingService) validate(req *CreateListingRequest) error {
	if strings.TrimSpace(req.Number) == "" {
		return fmt.Errorf("%w: 号码不能为空", ErrInvalidRequest)
	}
	switch req.Type {
	case model.ListingTypeFixed:
		if req.Price <= 0 {
			return fmt.Errorf("%w: 一口价必须大于0", ErrInvalidRequest)
		}
	case model.ListingTypeAuction:
		if req.AuctionEndTime == nil || !req.AuctionEndTime.After(s.clock.Now()) {
			return fmt.Errorf("%w: 竞拍结束时间必须晚于当前时间", ErrInvalidRequest)
		}
		if req.StartingBid < 0 {
			return fmt.Errorf("%w: 起拍价不能为负数", ErrInvalidRequest)
		}
	case model.ListingTypeInquiry:
		if strings.TrimSpace(req.InquiryPhone) == "" {
			return fmt.Errorf("%w: 询价挂单需要联系电话", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: 未知挂单类型 %s", ErrInvalidRequest, req.Type)
	}
	return nil
}

// CreateListing 发布挂单
// 靓号（rond）先通过账本扣除固定费用，扣费与挂单写入同一事务
func (s *ListingService) CreateListing(ctx context.Context, req *CreateListingRequest) (*model.Listing, error) {
	var listing *model.Listing
	err := s.atomic(ctx, []string{lock.UserKey(req.SellerID)}, func(ctx context.Context, st repository.Store) error {
		seller, err := st.GetUser(ctx, req.SellerID)
		if err != nil {
			return storeErr(err, "查询卖家失败")
		}

		info, err := s.quota(ctx, st, seller)
		if err != nil {
			return err
		}
		if !info.CanList {
			return fmt.Errorf("%w: 在售 %d，上限 %d", ErrQuotaExceeded, info.Active, info.Limit)
		}

		if err := s.validate(req); err != nil {
			return err
		}

		id := uuid.NewString()
		if req.IsRond && s.cfg.Business.RondListingFee > 0 {
			_, err := s.applyTransaction(ctx, st, seller, -s.cfg.Business.RondListingFee,
				model.TransactionKindPurchase, fmt.Sprintf("靓号挂单费-%s", req.Number), id)
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		listing = &model.Listing{
			ID:       id,
			Number:   strings.TrimSpace(req.Number),
			Carrier:  req.Carrier,
			SellerID: seller.ID,
			Type:     req.Type,
			Status:   model.ListingStatusAvailable,
			IsRond:   req.IsRond,
		}
		switch req.Type {
		case model.ListingTypeFixed:
			listing.Price = req.Price
		case model.ListingTypeAuction:
			end := *req.AuctionEndTime
			listing.AuctionEndTime = &end
			listing.CurrentBid = req.StartingBid
		case model.ListingTypeInquiry:
			listing.InquiryPhone = strings.TrimSpace(req.InquiryPhone)
		}
		listing.CreatedAt = now
		listing.UpdatedAt = now

		if err := st.CreateListing(ctx, listing); err != nil {
			return storeErr(err, "创建挂单失败")
		}

		return s.emit(ctx, st, model.EventListingCreated, listing.ID, map[string]interface{}{
			"listing_id": listing.ID,
			"number":     listing.Number,
			"type":       listing.Type,
			"seller_id":  listing.SellerID,
			"is_rond":    listing.IsRond,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("挂单成功: listingID=%s, sellerID=%d, type=%s, rond=%v",
		listing.ID, listing.SellerID, listing.Type, listing.IsRond)
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	listing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, storeErr(err, "查询挂单失败")
	}
	return listing, nil
}

type ListListingsResponse struct {
	List  []*model.Listing `json:"list"`
	Total int64            `json:"total"`
}

func (s *ListingService) ListListings(ctx context.Context, filter repository.ListingFilter) (*ListListingsResponse, error) {
	if filter.Type != "" && !model.ValidListingType(filter.Type) {
		return nil, fmt.Errorf("%w: 未知挂单类型 %s", ErrInvalidRequest, filter.Type)
	}
	list, total, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "查询挂单列表失败")
	}
	return &ListListingsResponse{List: list, Total: total}, nil
}
