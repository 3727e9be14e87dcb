package model

import (
	"time"
)

const (
	HoldStatusActive   = "ACTIVE"
	HoldStatusReleased = "RELEASED" // 被超越或一致性清理，资金退回可用余额
	HoldStatusSettled  = "SETTLED"  // 成交，资金转给卖家
)

// Hold 竞拍冻结单
// 每个竞拍挂单同一时刻最多一张 ACTIVE 冻结单，属于当前最高出价者，金额等于 CurrentBid
type Hold struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID string    `gorm:"type:varchar(36);index;not null" json:"listing_id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Hold) TableName() string {
	return "bid_hold"
}
