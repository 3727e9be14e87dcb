package service

import (
	"context"
	"fmt"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
)

type AuctionService struct {
	*core
}

func NewAuctionService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *AuctionService {
	return &AuctionService{core: newCore(repo, locker, clk, cfg, "auction")}
}

type BidRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	BidderID  int64  `json:"bidder_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	ListingID       string `json:"listing_id"`
	CurrentBid      int64  `json:"current_bid"`
	HighestBidderID int64  `json:"highest_bidder_id"`
	WalletBalance   int64  `json:"wallet_balance"`
	BlockedBalance  int64  `json:"blocked_balance"`
}

// PlaceBid 出价
//
// 校验顺序（先失败者为准）：
//  1. 挂单存在且为竞拍
//  2. 未到结束时间
//  3. 挂单未售出（结束前提前成交的情况）
//  4. 出价高于当前价
//  5. 出价人存在且不是卖家
//  6. 可用余额 >= 出价 - 本人在该竞拍上已冻结的金额
//
// 被超越的出价人立即解冻；同一人加价只冻结差额。
// 出价人与被超越者按用户 ID 升序读取加锁。
func (s *AuctionService) PlaceBid(ctx context.Context, req *BidRequest) (*BidResponse, error) {
	keys := []string{lock.ListingKey(req.ListingID), lock.UserKey(req.BidderID)}

	var resp *BidResponse
	var outbid []int64
	err := s.atomic(ctx, keys, func(ctx context.Context, st repository.Store) error {
		listing, err := st.GetListing(ctx, req.ListingID)
		if err != nil {
			return storeErr(err, "查询挂单失败")
		}
		if !listing.IsAuction() {
			return fmt.Errorf("%w: 挂单 %s 不是竞拍", ErrNotFound, listing.ID)
		}

		now := s.clock.Now()
		if listing.AuctionClosed(now) {
			return ErrAuctionClosed
		}
		if listing.Status != model.ListingStatusAvailable {
			return ErrAlreadySold
		}
		if req.Amount <= listing.CurrentBid {
			return fmt.Errorf("%w: 当前价格 %d", ErrBidTooLow, listing.CurrentBid)
		}

		holds, err := st.GetActiveHolds(ctx, listing.ID)
		if err != nil {
			return storeErr(err, "查询冻结单失败")
		}
		var own *model.Hold
		var others []*model.Hold
		ids := []int64{req.BidderID}
		for _, h := range holds {
			if h.UserID == req.BidderID {
				own = h
			} else {
				others = append(others, h)
				ids = append(ids, h.UserID)
			}
		}

		users, err := loadUsers(ctx, st, ids...)
		if err != nil {
			return storeErr(err, "查询出价相关用户失败")
		}
		bidder := users[req.BidderID]
		if bidder.ID == listing.SellerID {
			return fmt.Errorf("%w: 卖家不能对自己的挂单出价", ErrInvalidRequest)
		}

		delta := req.Amount
		if own != nil {
			delta -= own.Amount
		}
		if bidder.WalletBalance < delta {
			return fmt.Errorf("%w: 可用余额 %d，需要 %d", ErrInsufficientFunds, bidder.WalletBalance, delta)
		}

		for _, h := range others {
			prev := users[h.UserID]
			if err := s.releaseHold(ctx, st, prev, h, "outbid"); err != nil {
				return err
			}
			outbid = append(outbid, prev.ID)
		}

		bidder.WalletBalance -= delta
		bidder.BlockedBalance += delta
		if err := st.SaveUser(ctx, bidder); err != nil {
			return storeErr(err, "冻结出价资金失败")
		}

		if own == nil {
			own = &model.Hold{
				ListingID: listing.ID,
				UserID:    bidder.ID,
				Status:    model.HoldStatusActive,
				CreatedAt: now,
			}
		}
		own.Amount = req.Amount
		own.UpdatedAt = now
		if err := st.SaveHold(ctx, own); err != nil {
			return storeErr(err, "保存冻结单失败")
		}

		bidderID := bidder.ID
		listing.CurrentBid = req.Amount
		listing.HighestBidderID = &bidderID
		listing.Bids = append(listing.Bids, model.Bid{
			ListingID: listing.ID,
			BidderID:  bidder.ID,
			Amount:    req.Amount,
			CreatedAt: now,
		})
		if err := st.SaveListing(ctx, listing); err != nil {
			return storeErr(err, "保存出价失败")
		}

		err = s.emit(ctx, st, model.EventBidPlaced, listing.ID, map[string]interface{}{
			"listing_id": listing.ID,
			"bidder_id":  bidder.ID,
			"amount":     req.Amount,
		})
		if err != nil {
			return err
		}

		resp = &BidResponse{
			ListingID:       listing.ID,
			CurrentBid:      listing.CurrentBid,
			HighestBidderID: bidder.ID,
			WalletBalance:   bidder.WalletBalance,
			BlockedBalance:  bidder.BlockedBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("出价成功: listingID=%s, bidderID=%d, amount=%d, outbid=%v",
		req.ListingID, req.BidderID, req.Amount, outbid)
	return resp, nil
}
