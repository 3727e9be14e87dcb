package service

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store *repository.MemoryStore
	clock *clock.Manual
	cfg   *config.Config
	svc   *Services
}

func newTestEnv() *testEnv {
	cfg := &config.Config{}
	cfg.Kafka.Topic.MarketEvents = "sim_market_events"
	cfg.Business.RondListingFee = 5000

	store := repository.NewMemoryStore()
	clk := clock.NewManual(testStart)
	return &testEnv{
		store: store,
		clock: clk,
		cfg:   cfg,
		svc:   NewServices(store, lock.NewLocalLocker(), clk, cfg),
	}
}

func (e *testEnv) newUser(t require.TestingT, role string, balance int64) *model.User {
	user, err := e.svc.Account.CreateUser(context.Background(), &CreateUserRequest{
		Name:           "u-" + uuid.NewString()[:8],
		Role:           role,
		InitialBalance: balance,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) reload(t require.TestingT, id int64) *model.User {
	user, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (e *testEnv) listing(t require.TestingT, id string) *model.Listing {
	l, err := e.store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

// seedAuction 直接写入存储，绕过额度校验
func (e *testEnv) seedAuction(t require.TestingT, sellerID, floor int64, duration time.Duration) *model.Listing {
	end := e.clock.Now().Add(duration)
	l := &model.Listing{
		ID:             uuid.NewString(),
		Number:         "09121234567",
		SellerID:       sellerID,
		Type:           model.ListingTypeAuction,
		Status:         model.ListingStatusAvailable,
		AuctionEndTime: &end,
		CurrentBid:     floor,
		CreatedAt:      e.clock.Now(),
	}
	require.NoError(t, e.store.CreateListing(context.Background(), l))
	return l
}

func (e *testEnv) seedFixed(t require.TestingT, sellerID, price int64) *model.Listing {
	l := &model.Listing{
		ID:        uuid.NewString(),
		Number:    "09351112233",
		SellerID:  sellerID,
		Type:      model.ListingTypeFixed,
		Status:    model.ListingStatusAvailable,
		Price:     price,
		CreatedAt: e.clock.Now(),
	}
	require.NoError(t, e.store.CreateListing(context.Background(), l))
	return l
}

func (e *testEnv) seedPackage(t require.TestingT, limit int) *model.Package {
	pkg := &model.Package{Name: "test", Price: 1000, DurationDays: 30, ListingLimit: limit}
	require.NoError(t, e.store.CreatePackage(context.Background(), pkg))
	return pkg
}

func (e *testEnv) givePackage(t require.TestingT, user *model.User, pkg *model.Package, expires time.Time) {
	u := e.reload(t, user.ID)
	id := pkg.ID
	u.PackageID = &id
	u.PackageExpiresAt = &expires
	require.NoError(t, e.store.SaveUser(context.Background(), u))
}

func (e *testEnv) bid(listingID string, bidderID, amount int64) (*BidResponse, error) {
	return e.svc.Auction.PlaceBid(context.Background(), &BidRequest{
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
	})
}

func (e *testEnv) purchase(listingID string, buyerID int64) (*PurchaseResponse, error) {
	return e.svc.Purchase.PurchaseSim(context.Background(), &PurchaseRequest{
		ListingID: listingID,
		BuyerID:   buyerID,
	})
}

func (e *testEnv) activeHolds(t require.TestingT, listingID string) []*model.Hold {
	holds, err := e.store.GetActiveHolds(context.Background(), listingID)
	require.NoError(t, err)
	return holds
}

// transactionSum 用户全部流水金额之和
func (e *testEnv) transactionSum(userID int64) int64 {
	var sum int64
	for _, trans := range e.store.Transactions(userID) {
		sum += trans.Amount
	}
	return sum
}
