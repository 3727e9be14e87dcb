package model

import (
	"time"
)

const (
	TransactionKindDeposit    = "deposit"
	TransactionKindWithdrawal = "withdrawal"
	TransactionKindPurchase   = "purchase"
	TransactionKindSale       = "sale"
)

// KindAllowsAmount 入账类型必须为正，出账类型必须为负
func KindAllowsAmount(kind string, amount int64) bool {
	switch kind {
	case TransactionKindDeposit, TransactionKindSale:
		return amount > 0
	case TransactionKindWithdrawal, TransactionKindPurchase:
		return amount < 0
	}
	return false
}

// Transaction 钱包流水
//
// 只追加，不修改，不删除。
// BalanceBefore/BalanceAfter 记录的是用户总资金（可用 + 冻结），
// 因此始终满足 BalanceAfter - BalanceBefore == Amount，
// 包括竞拍成交时从冻结资金中扣款的流水。
type Transaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	ListingID     string    `gorm:"type:varchar(36);index" json:"listing_id,omitempty"`
	Amount        int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	Kind          string    `gorm:"type:varchar(16);not null" json:"kind"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "wallet_transaction"
}
