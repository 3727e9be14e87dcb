package model

import (
	"time"
)

const (
	ListingTypeFixed   = "fixed"
	ListingTypeAuction = "auction"
	ListingTypeInquiry = "inquiry"
)

const (
	ListingStatusAvailable = "available"
	ListingStatusSold      = "sold"
)

// 售出后不可回退
var ValidStatusTransitions = map[string][]string{
	ListingStatusAvailable: {ListingStatusSold},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidStatusTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func ValidListingType(t string) bool {
	return t == ListingTypeFixed || t == ListingTypeAuction || t == ListingTypeInquiry
}

// Listing 挂单（一张 SIM 卡号码）
//
// 竞拍字段仅在 Type = auction 时有意义：
//   - CurrentBid 无出价时为卖家设置的起拍价，否则等于最后一次出价
//   - HighestBidderID 当且仅当存在出价时非空
//   - Bids 只追加，金额严格递增
type Listing struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Number          string     `gorm:"type:varchar(20);index;not null" json:"number"`
	Carrier         string     `gorm:"type:varchar(32)" json:"carrier"`
	Price           int64      `gorm:"not null;default:0" json:"price"`
	SellerID        int64      `gorm:"index:idx_seller_status;not null" json:"seller_id"`
	Type            string     `gorm:"type:varchar(16);not null" json:"type"`
	Status          string     `gorm:"type:varchar(16);index:idx_seller_status;not null" json:"status"`
	IsRond          bool       `gorm:"not null;default:false" json:"is_rond"`
	InquiryPhone    string     `gorm:"type:varchar(20)" json:"inquiry_phone,omitempty"`
	BuyerID         *int64     `json:"buyer_id,omitempty"`
	SoldAt          *time.Time `json:"sold_at,omitempty"`
	AuctionEndTime  *time.Time `json:"auction_end_time,omitempty"`
	CurrentBid      int64      `gorm:"not null;default:0" json:"current_bid"`
	HighestBidderID *int64     `json:"highest_bidder_id,omitempty"`
	Bids            []Bid      `gorm:"foreignKey:ListingID" json:"bids,omitempty"`
	Version         int        `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Listing) TableName() string {
	return "sim_listing"
}

func (l *Listing) IsAuction() bool {
	return l.Type == ListingTypeAuction
}

// AuctionClosed 到达结束时间即视为结束
func (l *Listing) AuctionClosed(now time.Time) bool {
	return l.AuctionEndTime == nil || !now.Before(*l.AuctionEndTime)
}

// Bid 出价记录，只追加
type Bid struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID string    `gorm:"type:varchar(36);index;not null" json:"listing_id"`
	BidderID  int64     `gorm:"index;not null" json:"bidder_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Bid) TableName() string {
	return "sim_bid"
}
