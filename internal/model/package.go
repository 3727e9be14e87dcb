package model

import (
	"time"
)

// Package 卖家套餐，ListingLimit 为同时在售挂单上限
type Package struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(64);not null" json:"name"`
	Price        int64     `gorm:"not null" json:"price"`
	DurationDays int       `gorm:"not null" json:"duration_days"`
	ListingLimit int       `gorm:"not null" json:"listing_limit"`
	Description  string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Package) TableName() string {
	return "seller_package"
}
