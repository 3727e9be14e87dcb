package service

import (
	"context"
	"fmt"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
)

type PurchaseService struct {
	*core
}

func NewPurchaseService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *PurchaseService {
	return &PurchaseService{core: newCore(repo, locker, clk, cfg, "purchase")}
}

type PurchaseRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	BuyerID   int64  `json:"buyer_id" binding:"required"`
}

type PurchaseResponse struct {
	ListingID     string    `json:"listing_id"`
	BuyerID       int64     `json:"buyer_id"`
	SellerID      int64     `json:"seller_id"`
	Price         int64     `json:"price"`
	TransactionNo string    `json:"transaction_no"`
	SoldAt        time.Time `json:"sold_at"`
}

// PurchaseSim 购买号码
//
// 一口价：从买家可用余额扣款；竞拍：只有最高出价者可买，从其冻结资金结算。
// 卖家入账、挂单置为已售与扣款在同一个事务内完成。
func (s *PurchaseService) PurchaseSim(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	keys := []string{lock.ListingKey(req.ListingID), lock.UserKey(req.BuyerID)}

	var resp *PurchaseResponse
	err := s.atomic(ctx, keys, func(ctx context.Context, st repository.Store) error {
		listing, err := st.GetListing(ctx, req.ListingID)
		if err != nil {
			return storeErr(err, "查询挂单失败")
		}
		if !model.CanTransitionTo(listing.Status, model.ListingStatusSold) {
			return ErrAlreadySold
		}
		if listing.Type == model.ListingTypeInquiry {
			return fmt.Errorf("%w: 询价挂单请联系卖家 %s", ErrInvalidRequest, listing.InquiryPhone)
		}
		if listing.SellerID == req.BuyerID {
			return fmt.Errorf("%w: 不能购买自己的挂单", ErrInvalidRequest)
		}
		if listing.IsAuction() && (listing.HighestBidderID == nil || *listing.HighestBidderID != req.BuyerID) {
			return ErrNotAuctionWinner
		}

		var holds []*model.Hold
		if listing.IsAuction() {
			holds, err = st.GetActiveHolds(ctx, listing.ID)
			if err != nil {
				return storeErr(err, "查询冻结单失败")
			}
		}
		ids := []int64{req.BuyerID, listing.SellerID}
		for _, h := range holds {
			ids = append(ids, h.UserID)
		}
		users, err := loadUsers(ctx, st, ids...)
		if err != nil {
			return storeErr(err, "查询交易相关用户失败")
		}
		buyer, seller := users[req.BuyerID], users[listing.SellerID]

		desc := fmt.Sprintf("购买号码-%s", listing.Number)
		var buyerTrans *model.Transaction
		price := listing.Price

		if listing.IsAuction() {
			price = listing.CurrentBid
			var winning *model.Hold
			for _, h := range holds {
				if h.UserID == buyer.ID {
					winning = h
					break
				}
			}
			if winning == nil || winning.Amount != price {
				return fmt.Errorf("竞拍冻结记录与当前价格不一致: listingID=%s, buyerID=%d", listing.ID, buyer.ID)
			}
			buyerTrans, err = s.settleHold(ctx, st, buyer, winning, desc)
		} else {
			buyerTrans, err = s.applyTransaction(ctx, st, buyer, -price, model.TransactionKindPurchase, desc, listing.ID)
		}
		if err != nil {
			return err
		}

		_, err = s.applyTransaction(ctx, st, seller, price, model.TransactionKindSale,
			fmt.Sprintf("出售号码-%s", listing.Number), listing.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		buyerID := buyer.ID
		listing.Status = model.ListingStatusSold
		listing.SoldAt = &now
		listing.BuyerID = &buyerID
		if err := st.SaveListing(ctx, listing); err != nil {
			return storeErr(err, "更新挂单状态失败")
		}

		// 一致性清理：正常情况下出价时已逐个解冻，这里不应再有剩余
		for _, h := range holds {
			if h.UserID == buyer.ID {
				continue
			}
			if err := s.releaseHold(ctx, st, users[h.UserID], h, "sweep"); err != nil {
				return err
			}
			s.log.WithField("listing_id", listing.ID).Warnf("成交后仍有冻结单，已解冻: holdID=%d, userID=%d, amount=%d",
				h.ID, h.UserID, h.Amount)
		}

		err = s.emit(ctx, st, model.EventListingSold, listing.ID, map[string]interface{}{
			"listing_id": listing.ID,
			"number":     listing.Number,
			"type":       listing.Type,
			"buyer_id":   buyer.ID,
			"seller_id":  seller.ID,
			"price":      price,
		})
		if err != nil {
			return err
		}

		resp = &PurchaseResponse{
			ListingID:     listing.ID,
			BuyerID:       buyer.ID,
			SellerID:      seller.ID,
			Price:         price,
			TransactionNo: buyerTrans.TransactionNo,
			SoldAt:        now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("购买成功: listingID=%s, buyerID=%d, sellerID=%d, price=%d",
		resp.ListingID, resp.BuyerID, resp.SellerID, resp.Price)
	return resp, nil
}
