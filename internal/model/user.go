package model

import (
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleBuyer  = "buyer"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleSeller || role == RoleBuyer
}

// User 用户及其钱包
// WalletBalance 为可用余额；BlockedBalance 为竞拍冻结中的资金，
// 不可花费，也尚未转给任何人，等于该用户所有 ACTIVE 冻结单之和
type User struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string     `gorm:"type:varchar(64);not null" json:"name"`
	Role             string     `gorm:"type:varchar(16);not null" json:"role"`
	WalletBalance    int64      `gorm:"not null;default:0" json:"wallet_balance"`
	BlockedBalance   int64      `gorm:"not null;default:0" json:"blocked_balance"`
	PackageID        *int64     `json:"package_id,omitempty"`
	PackageExpiresAt *time.Time `json:"package_expires_at,omitempty"`
	Version          int        `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "market_user"
}

// TotalFunds 可用 + 冻结
func (u *User) TotalFunds() int64 {
	return u.WalletBalance + u.BlockedBalance
}

// ActivePackageID 返回未过期的套餐
func (u *User) ActivePackageID(now time.Time) (int64, bool) {
	if u.PackageID == nil {
		return 0, false
	}
	if u.PackageExpiresAt != nil && !now.Before(*u.PackageExpiresAt) {
		return 0, false
	}
	return *u.PackageID, true
}
