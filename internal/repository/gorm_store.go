package repository

import (
	"context"

	"simmarket/internal/model"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的 Repository 实现（MySQL / Postgres）
//
// tx 为空时直接读写；WithinTx 中使用的副本持有事务句柄，
// 并对用户、挂单、冻结单的读取加 FOR UPDATE。
type GormStore struct {
	db           *gorm.DB
	tx           *gorm.DB
	users        *UserRepository
	listings     *ListingRepository
	holds        *HoldRepository
	transactions *TransactionRepository
	packages     *PackageRepository
	outbox       *OutboxRepository
}

var (
	_ Repository  = (*GormStore)(nil)
	_ OutboxStore = (*OutboxRepository)(nil)
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:           db,
		users:        NewUserRepository(db),
		listings:     NewListingRepository(db),
		holds:        NewHoldRepository(db),
		transactions: NewTransactionRepository(db),
		packages:     NewPackageRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

// Outbox 消息表仓储，供 OutboxSender 使用
func (s *GormStore) Outbox() *OutboxRepository {
	return s.outbox
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := *s
		scoped.tx = tx
		return fn(ctx, &scoped)
	})
}

func (s *GormStore) locking() bool {
	return s.tx != nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.users.Create(ctx, s.tx, user)
}

func (s *GormStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, s.tx, id, s.locking())
}

func (s *GormStore) SaveUser(ctx context.Context, user *model.User) error {
	return s.users.Save(ctx, s.tx, user)
}

func (s *GormStore) ListUsersWithHeldFunds(ctx context.Context, limit int) ([]*model.User, error) {
	return s.users.ListWithHeldFunds(ctx, limit)
}

func (s *GormStore) ListUsers(ctx context.Context, page, pageSize int) ([]*model.User, int64, error) {
	return s.users.List(ctx, page, pageSize)
}

func (s *GormStore) CreateListing(ctx context.Context, listing *model.Listing) error {
	return s.listings.Create(ctx, s.tx, listing)
}

func (s *GormStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return s.listings.GetByID(ctx, s.tx, id, s.locking())
}

func (s *GormStore) SaveListing(ctx context.Context, listing *model.Listing) error {
	return s.listings.Save(ctx, s.tx, listing)
}

func (s *GormStore) CountAvailableListings(ctx context.Context, sellerID int64) (int64, error) {
	return s.listings.CountAvailable(ctx, s.tx, sellerID)
}

func (s *GormStore) ListListings(ctx context.Context, filter ListingFilter) ([]*model.Listing, int64, error) {
	return s.listings.List(ctx, filter)
}

func (s *GormStore) GetActiveHolds(ctx context.Context, listingID string) ([]*model.Hold, error) {
	return s.holds.GetActiveByListing(ctx, s.tx, listingID, s.locking())
}

func (s *GormStore) SumActiveHolds(ctx context.Context, userID int64) (int64, error) {
	return s.holds.SumActiveByUser(ctx, s.tx, userID)
}

func (s *GormStore) SaveHold(ctx context.Context, hold *model.Hold) error {
	return s.holds.Save(ctx, s.tx, hold)
}

func (s *GormStore) AppendTransaction(ctx context.Context, trans *model.Transaction) error {
	return s.transactions.Create(ctx, s.tx, trans)
}

func (s *GormStore) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.transactions.ListByUserID(ctx, userID, page, pageSize)
}

func (s *GormStore) CreatePackage(ctx context.Context, pkg *model.Package) error {
	return s.packages.Create(ctx, s.tx, pkg)
}

func (s *GormStore) GetPackage(ctx context.Context, id int64) (*model.Package, error) {
	return s.packages.GetByID(ctx, s.tx, id)
}

func (s *GormStore) SavePackage(ctx context.Context, pkg *model.Package) error {
	return s.packages.Save(ctx, s.tx, pkg)
}

func (s *GormStore) ListPackages(ctx context.Context) ([]*model.Package, error) {
	return s.packages.List(ctx)
}

func (s *GormStore) AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	return s.outbox.Create(ctx, s.tx, msg)
}
