package repository

import (
	"context"
	"sort"
	"sync"

	"simmarket/internal/model"
)

// MemoryStore 单进程内存存储。
// 所有读写串行执行；WithinTx 在工作副本上执行回调，成功才替换当前状态。
// 已存入的记录从不原地修改（写入总是换成新的副本），工作副本只需复制索引。
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

var (
	_ Repository  = (*MemoryStore)(nil)
	_ OutboxStore = (*MemoryStore)(nil)
	_ Store       = (*memState)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Reset 清空所有数据，仅测试使用
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	m.state = newMemState()
	m.mu.Unlock()
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) do(fn func(s *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	return m.do(func(s *memState) error { return s.CreateUser(ctx, user) })
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (user *model.User, err error) {
	err = m.do(func(s *memState) error {
		user, err = s.GetUser(ctx, id)
		return err
	})
	return user, err
}

func (m *MemoryStore) SaveUser(ctx context.Context, user *model.User) error {
	return m.do(func(s *memState) error { return s.SaveUser(ctx, user) })
}

func (m *MemoryStore) ListUsersWithHeldFunds(ctx context.Context, limit int) (users []*model.User, err error) {
	err = m.do(func(s *memState) error {
		users, err = s.ListUsersWithHeldFunds(ctx, limit)
		return err
	})
	return users, err
}

func (m *MemoryStore) ListUsers(ctx context.Context, page, pageSize int) (users []*model.User, total int64, err error) {
	err = m.do(func(s *memState) error {
		users, total, err = s.ListUsers(ctx, page, pageSize)
		return err
	})
	return users, total, err
}

func (m *MemoryStore) CreateListing(ctx context.Context, listing *model.Listing) error {
	return m.do(func(s *memState) error { return s.CreateListing(ctx, listing) })
}

func (m *MemoryStore) GetListing(ctx context.Context, id string) (listing *model.Listing, err error) {
	err = m.do(func(s *memState) error {
		listing, err = s.GetListing(ctx, id)
		return err
	})
	return listing, err
}

func (m *MemoryStore) SaveListing(ctx context.Context, listing *model.Listing) error {
	return m.do(func(s *memState) error { return s.SaveListing(ctx, listing) })
}

func (m *MemoryStore) CountAvailableListings(ctx context.Context, sellerID int64) (count int64, err error) {
	err = m.do(func(s *memState) error {
		count, err = s.CountAvailableListings(ctx, sellerID)
		return err
	})
	return count, err
}

func (m *MemoryStore) ListListings(ctx context.Context, filter ListingFilter) (listings []*model.Listing, total int64, err error) {
	err = m.do(func(s *memState) error {
		listings, total, err = s.ListListings(ctx, filter)
		return err
	})
	return listings, total, err
}

func (m *MemoryStore) GetActiveHolds(ctx context.Context, listingID string) (holds []*model.Hold, err error) {
	err = m.do(func(s *memState) error {
		holds, err = s.GetActiveHolds(ctx, listingID)
		return err
	})
	return holds, err
}

func (m *MemoryStore) SumActiveHolds(ctx context.Context, userID int64) (sum int64, err error) {
	err = m.do(func(s *memState) error {
		sum, err = s.SumActiveHolds(ctx, userID)
		return err
	})
	return sum, err
}

func (m *MemoryStore) SaveHold(ctx context.Context, hold *model.Hold) error {
	return m.do(func(s *memState) error { return s.SaveHold(ctx, hold) })
}

func (m *MemoryStore) AppendTransaction(ctx context.Context, trans *model.Transaction) error {
	return m.do(func(s *memState) error { return s.AppendTransaction(ctx, trans) })
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID int64, page, pageSize int) (list []*model.Transaction, total int64, err error) {
	err = m.do(func(s *memState) error {
		list, total, err = s.ListTransactions(ctx, userID, page, pageSize)
		return err
	})
	return list, total, err
}

func (m *MemoryStore) CreatePackage(ctx context.Context, pkg *model.Package) error {
	return m.do(func(s *memState) error { return s.CreatePackage(ctx, pkg) })
}

func (m *MemoryStore) GetPackage(ctx context.Context, id int64) (pkg *model.Package, err error) {
	err = m.do(func(s *memState) error {
		pkg, err = s.GetPackage(ctx, id)
		return err
	})
	return pkg, err
}

func (m *MemoryStore) SavePackage(ctx context.Context, pkg *model.Package) error {
	return m.do(func(s *memState) error { return s.SavePackage(ctx, pkg) })
}

func (m *MemoryStore) ListPackages(ctx context.Context) (pkgs []*model.Package, err error) {
	err = m.do(func(s *memState) error {
		pkgs, err = s.ListPackages(ctx)
		return err
	})
	return pkgs, err
}

func (m *MemoryStore) AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	return m.do(func(s *memState) error { return s.AppendOutbox(ctx, msg) })
}

func (m *MemoryStore) GetPendingMessages(ctx context.Context, limit int) (msgs []*model.OutboxMessage, err error) {
	err = m.do(func(s *memState) error {
		for _, msg := range s.outbox {
			if len(msgs) >= limit {
				break
			}
			if msg.Status == model.OutboxStatusPending {
				c := *msg
				msgs = append(msgs, &c)
			}
		}
		return nil
	})
	return msgs, err
}

// UpdateStatus 投递成功的消息直接删除，内存中只保留待投递与失败的消息
func (m *MemoryStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	return m.do(func(s *memState) error {
		if status == model.OutboxStatusSent {
			s.removeOutbox(id)
			return nil
		}
		s.updateOutbox(id, func(msg *model.OutboxMessage) { msg.Status = status })
		return nil
	})
}

func (m *MemoryStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return m.do(func(s *memState) error {
		s.updateOutbox(id, func(msg *model.OutboxMessage) { msg.RetryCount++ })
		return nil
	})
}

func (m *MemoryStore) MarkAsFailed(ctx context.Context, id int64) error {
	return m.do(func(s *memState) error {
		s.updateOutbox(id, func(msg *model.OutboxMessage) { msg.Status = model.OutboxStatusFailed })
		return nil
	})
}

// OutboxLen 内存中剩余的消息数（待投递与失败）
func (m *MemoryStore) OutboxLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.outbox)
}

// Transactions 返回某用户的全部流水（按追加顺序），供对账与测试使用
func (m *MemoryStore) Transactions(userID int64) []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.state.transactions {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out
}

// ============================================================================
// memState 是实际的数据，本身不加锁，由 MemoryStore 串行化访问
// ============================================================================

type memState struct {
	users        map[int64]*model.User
	listings     map[string]*model.Listing
	holds        map[int64]*model.Hold
	packages     map[int64]*model.Package
	transactions []*model.Transaction
	outbox       []*model.OutboxMessage

	nextUserID    int64
	nextBidID     int64
	nextHoldID    int64
	nextPackageID int64
	nextTransID   int64
	nextOutboxID  int64
}

func newMemState() *memState {
	return &memState{
		users:    make(map[int64]*model.User),
		listings: make(map[string]*model.Listing),
		holds:    make(map[int64]*model.Hold),
		packages: make(map[int64]*model.Package),
	}
}

// clone 复制索引，记录指针共享。
// 切片用满容量截取，工作副本 append 时必然重新分配，不会写到原状态的底层数组。
func (s *memState) clone() *memState {
	c := *s
	c.users = make(map[int64]*model.User, len(s.users))
	for id, u := range s.users {
		c.users[id] = u
	}
	c.listings = make(map[string]*model.Listing, len(s.listings))
	for id, l := range s.listings {
		c.listings[id] = l
	}
	c.holds = make(map[int64]*model.Hold, len(s.holds))
	for id, h := range s.holds {
		c.holds[id] = h
	}
	c.packages = make(map[int64]*model.Package, len(s.packages))
	for id, p := range s.packages {
		c.packages[id] = p
	}
	c.transactions = s.transactions[:len(s.transactions):len(s.transactions)]
	c.outbox = s.outbox[:len(s.outbox):len(s.outbox)]
	return &c
}

func copyUser(u *model.User) *model.User {
	c := *u
	if u.PackageID != nil {
		id := *u.PackageID
		c.PackageID = &id
	}
	if u.PackageExpiresAt != nil {
		t := *u.PackageExpiresAt
		c.PackageExpiresAt = &t
	}
	return &c
}

func copyListing(l *model.Listing) *model.Listing {
	c := *l
	if l.BuyerID != nil {
		v := *l.BuyerID
		c.BuyerID = &v
	}
	if l.SoldAt != nil {
		v := *l.SoldAt
		c.SoldAt = &v
	}
	if l.AuctionEndTime != nil {
		v := *l.AuctionEndTime
		c.AuctionEndTime = &v
	}
	if l.HighestBidderID != nil {
		v := *l.HighestBidderID
		c.HighestBidderID = &v
	}
	c.Bids = append([]model.Bid(nil), l.Bids...)
	return &c
}

func (s *memState) updateOutbox(id int64, fn func(msg *model.OutboxMessage)) {
	for i, msg := range s.outbox {
		if msg.ID == id {
			c := *msg
			fn(&c)
			s.outbox[i] = &c
			return
		}
	}
}

func (s *memState) removeOutbox(id int64) {
	for i, msg := range s.outbox {
		if msg.ID == id {
			rest := make([]*model.OutboxMessage, 0, len(s.outbox)-1)
			rest = append(rest, s.outbox[:i]...)
			s.outbox = append(rest, s.outbox[i+1:]...)
			return
		}
	}
}

func (s *memState) CreateUser(_ context.Context, user *model.User) error {
	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memState) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *memState) SaveUser(_ context.Context, user *model.User) error {
	cur, ok := s.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	if cur.Version != user.Version {
		return ErrOptimisticLock
	}
	user.Version++
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memState) ListUsersWithHeldFunds(_ context.Context, limit int) ([]*model.User, error) {
	held := make(map[int64]bool)
	for id, u := range s.users {
		if u.BlockedBalance > 0 {
			held[id] = true
		}
	}
	for _, h := range s.holds {
		if h.Status == model.HoldStatusActive {
			if _, ok := s.users[h.UserID]; ok {
				held[h.UserID] = true
			}
		}
	}

	ids := make([]int64, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, copyUser(s.users[id]))
	}
	return users, nil
}

func (s *memState) ListUsers(_ context.Context, page, pageSize int) ([]*model.User, int64, error) {
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := int64(len(ids))
	page, pageSize = normalizePage(page, pageSize)
	start := (page - 1) * pageSize
	if start >= len(ids) {
		return []*model.User{}, total, nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	users := make([]*model.User, 0, end-start)
	for _, id := range ids[start:end] {
		users = append(users, copyUser(s.users[id]))
	}
	return users, total, nil
}

func (s *memState) CreateListing(_ context.Context, listing *model.Listing) error {
	for i := range listing.Bids {
		s.nextBidID++
		listing.Bids[i].ID = s.nextBidID
		listing.Bids[i].ListingID = listing.ID
	}
	s.listings[listing.ID] = copyListing(listing)
	return nil
}

func (s *memState) GetListing(_ context.Context, id string) (*model.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return copyListing(l), nil
}

func (s *memState) SaveListing(_ context.Context, listing *model.Listing) error {
	cur, ok := s.listings[listing.ID]
	if !ok {
		return ErrListingNotFound
	}
	if cur.Version != listing.Version {
		return ErrOptimisticLock
	}
	for i := range listing.Bids {
		if listing.Bids[i].ID == 0 {
			s.nextBidID++
			listing.Bids[i].ID = s.nextBidID
			listing.Bids[i].ListingID = listing.ID
		}
	}
	listing.Version++
	s.listings[listing.ID] = copyListing(listing)
	return nil
}

func (s *memState) CountAvailableListings(_ context.Context, sellerID int64) (int64, error) {
	var count int64
	for _, l := range s.listings {
		if l.SellerID == sellerID && l.Status == model.ListingStatusAvailable {
			count++
		}
	}
	return count, nil
}

func (s *memState) ListListings(_ context.Context, filter ListingFilter) ([]*model.Listing, int64, error) {
	var matched []*model.Listing
	for _, l := range s.listings {
		if filter.SellerID != 0 && l.SellerID != filter.SellerID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Type != "" && l.Type != filter.Type {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []*model.Listing{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*model.Listing, 0, end-start)
	for _, l := range matched[start:end] {
		c := copyListing(l)
		c.Bids = nil
		out = append(out, c)
	}
	return out, total, nil
}

func (s *memState) GetActiveHolds(_ context.Context, listingID string) ([]*model.Hold, error) {
	var holds []*model.Hold
	for _, h := range s.holds {
		if h.ListingID == listingID && h.Status == model.HoldStatusActive {
			c := *h
			holds = append(holds, &c)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].ID < holds[j].ID })
	return holds, nil
}

func (s *memState) SumActiveHolds(_ context.Context, userID int64) (int64, error) {
	var sum int64
	for _, h := range s.holds {
		if h.UserID == userID && h.Status == model.HoldStatusActive {
			sum += h.Amount
		}
	}
	return sum, nil
}

func (s *memState) SaveHold(_ context.Context, hold *model.Hold) error {
	if hold.ID == 0 {
		s.nextHoldID++
		hold.ID = s.nextHoldID
	}
	c := *hold
	s.holds[hold.ID] = &c
	return nil
}

func (s *memState) AppendTransaction(_ context.Context, trans *model.Transaction) error {
	s.nextTransID++
	trans.ID = s.nextTransID
	c := *trans
	s.transactions = append(s.transactions, &c)
	return nil
}

func (s *memState) ListTransactions(_ context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var matched []*model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			matched = append(matched, s.transactions[i])
		}
	}
	total := int64(len(matched))
	page, pageSize = normalizePage(page, pageSize)
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []*model.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*model.Transaction, 0, end-start)
	for _, t := range matched[start:end] {
		c := *t
		out = append(out, &c)
	}
	return out, total, nil
}

func (s *memState) CreatePackage(_ context.Context, pkg *model.Package) error {
	s.nextPackageID++
	pkg.ID = s.nextPackageID
	c := *pkg
	s.packages[pkg.ID] = &c
	return nil
}

func (s *memState) GetPackage(_ context.Context, id int64) (*model.Package, error) {
	p, ok := s.packages[id]
	if !ok {
		return nil, ErrPackageNotFound
	}
	c := *p
	return &c, nil
}

func (s *memState) SavePackage(_ context.Context, pkg *model.Package) error {
	cur, ok := s.packages[pkg.ID]
	if !ok {
		return ErrPackageNotFound
	}
	c := *pkg
	c.CreatedAt = cur.CreatedAt
	s.packages[pkg.ID] = &c
	return nil
}

func (s *memState) ListPackages(_ context.Context) ([]*model.Package, error) {
	pkgs := make([]*model.Package, 0, len(s.packages))
	for _, p := range s.packages {
		c := *p
		pkgs = append(pkgs, &c)
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].Price == pkgs[j].Price {
			return pkgs[i].ID < pkgs[j].ID
		}
		return pkgs[i].Price < pkgs[j].Price
	})
	return pkgs, nil
}

func (s *memState) AppendOutbox(_ context.Context, msg *model.OutboxMessage) error {
	s.nextOutboxID++
	msg.ID = s.nextOutboxID
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	c := *msg
	s.outbox = append(s.outbox, &c)
	return nil
}
