package repository

import (
	"context"
	"errors"

	"simmarket/internal/model"
)

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrListingNotFound = errors.New("挂单不存在")
	ErrPackageNotFound = errors.New("套餐不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

// ListingFilter 挂单查询条件，零值字段不参与过滤
type ListingFilter struct {
	SellerID int64
	Status   string
	Type     string
	Page     int
	PageSize int
}

// Store 引擎依赖的存储操作。
// 在 WithinTx 回调中拿到的 Store，读取用户/挂单时会加行锁，
// 写入与回调返回 nil 一起提交，返回错误则全部回滚。
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	// SaveUser 按 Version 做乐观锁校验，成功后 user.Version 自增
	SaveUser(ctx context.Context, user *model.User) error
	// ListUsersWithHeldFunds 冻结余额大于 0 或名下有 ACTIVE 冻结单的用户，按 ID 升序
	ListUsersWithHeldFunds(ctx context.Context, limit int) ([]*model.User, error)
	ListUsers(ctx context.Context, page, pageSize int) ([]*model.User, int64, error)

	CreateListing(ctx context.Context, listing *model.Listing) error
	// GetListing 返回的 Bids 按出价顺序排列
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	// SaveListing 更新挂单并追加 ID 为 0 的新出价
	SaveListing(ctx context.Context, listing *model.Listing) error
	CountAvailableListings(ctx context.Context, sellerID int64) (int64, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]*model.Listing, int64, error)

	GetActiveHolds(ctx context.Context, listingID string) ([]*model.Hold, error)
	SumActiveHolds(ctx context.Context, userID int64) (int64, error)
	// SaveHold ID 为 0 时新建
	SaveHold(ctx context.Context, hold *model.Hold) error

	AppendTransaction(ctx context.Context, trans *model.Transaction) error
	ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error)

	CreatePackage(ctx context.Context, pkg *model.Package) error
	GetPackage(ctx context.Context, id int64) (*model.Package, error)
	SavePackage(ctx context.Context, pkg *model.Package) error
	ListPackages(ctx context.Context) ([]*model.Package, error)

	AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error
}

// Repository 带事务能力的 Store
type Repository interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error
}

// OutboxStore OutboxSender 使用的消息表操作
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
