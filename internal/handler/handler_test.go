package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/internal/service"
	"simmarket/pkg/clock"
	"simmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	clock  *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Kafka.Topic.MarketEvents = "sim_market_events"
	cfg.Business.RondListingFee = 5000

	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := service.NewServices(repository.NewMemoryStore(), lock.NewLocalLocker(), clk, cfg)
	return &testServer{router: SetupRouter(svc), clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) createUser(t *testing.T, name, role string, balance int64) int64 {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/user/create", gin.H{
		"name": name, "role": role, "initial_balance": balance,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var user model.User
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	return user.ID
}

func (s *testServer) user(t *testing.T, id int64) model.User {
	t.Helper()
	resp := s.do(t, http.MethodGet, "/api/v1/user/detail?user_id="+itoa(id), nil)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var user model.User
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	return user
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestAuctionFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.createUser(t, "admin", model.RoleAdmin, 0)
	seller := s.createUser(t, "seller", model.RoleSeller, 100_000)
	a := s.createUser(t, "a", model.RoleBuyer, 2_000_000)
	b := s.createUser(t, "b", model.RoleBuyer, 2_000_000)

	// 无套餐不能挂单
	resp := s.do(t, http.MethodGet, "/api/v1/listing/can-list?seller_id="+itoa(seller), nil)
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.NotEmpty(t, resp.Data)

	resp = s.do(t, http.MethodPost, "/api/v1/package/create", gin.H{
		"operator_id": admin, "name": "bronze", "price": 50_000, "duration_days": 30, "listing_limit": 5,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var pkg model.Package
	require.NoError(t, json.Unmarshal(resp.Data, &pkg))

	resp = s.do(t, http.MethodPost, "/api/v1/package/buy", gin.H{"user_id": seller, "package_id": pkg.ID})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	end := s.clock.Now().Add(time.Hour)
	resp = s.do(t, http.MethodPost, "/api/v1/listing/create", gin.H{
		"seller_id": seller, "number": "09121234567", "type": model.ListingTypeAuction,
		"auction_end_time": end, "starting_bid": 0,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var listing model.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &listing))

	resp = s.do(t, http.MethodPost, "/api/v1/auction/bid", gin.H{"listing_id": listing.ID, "bidder_id": a, "amount": 780_000})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	resp = s.do(t, http.MethodPost, "/api/v1/auction/bid", gin.H{"listing_id": listing.ID, "bidder_id": b, "amount": 700_000})
	assert.Equal(t, response.CodeBidTooLow, resp.Code)
	resp = s.do(t, http.MethodPost, "/api/v1/auction/bid", gin.H{"listing_id": listing.ID, "bidder_id": b, "amount": 925_000})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	ua := s.user(t, a)
	assert.Equal(t, int64(0), ua.BlockedBalance)
	assert.Equal(t, int64(2_000_000), ua.WalletBalance)

	resp = s.do(t, http.MethodPost, "/api/v1/listing/purchase", gin.H{"listing_id": listing.ID, "buyer_id": a})
	assert.Equal(t, response.CodeNotAuctionWinner, resp.Code)

	s.clock.Advance(2 * time.Hour)
	resp = s.do(t, http.MethodPost, "/api/v1/auction/bid", gin.H{"listing_id": listing.ID, "bidder_id": a, "amount": 2_000_000})
	assert.Equal(t, response.CodeAuctionClosed, resp.Code)

	resp = s.do(t, http.MethodPost, "/api/v1/listing/purchase", gin.H{"listing_id": listing.ID, "buyer_id": b})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	ub := s.user(t, b)
	assert.Equal(t, int64(0), ub.BlockedBalance)
	assert.Equal(t, int64(1_075_000), ub.WalletBalance)
	assert.Equal(t, int64(100_000-50_000+925_000), s.user(t, seller).WalletBalance)

	resp = s.do(t, http.MethodGet, "/api/v1/listing/detail?id="+listing.ID, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Equal(t, model.ListingStatusSold, listing.Status)
	assert.Len(t, listing.Bids, 2)
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)
	u := s.createUser(t, "u", model.RoleBuyer, 1000)

	resp := s.do(t, http.MethodPost, "/api/v1/wallet/deposit", gin.H{"user_id": u, "amount": 500})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = s.do(t, http.MethodPost, "/api/v1/wallet/withdraw", gin.H{"user_id": u, "amount": 5000})
	assert.Equal(t, response.CodeInsufficientFunds, resp.Code)

	resp = s.do(t, http.MethodPost, "/api/v1/wallet/transaction", gin.H{"user_id": u, "amount": 10, "kind": model.TransactionKindWithdrawal})
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = s.do(t, http.MethodPost, "/api/v1/wallet/deposit", gin.H{"user_id": u})
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/user/transactions?user_id="+itoa(u), nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(2), page.Total)

	assert.Equal(t, int64(1500), s.user(t, u).WalletBalance)
}

func TestNotFoundAndParamErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/user/detail?user_id=77", nil)
	assert.Equal(t, response.CodeNotFound, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/user/detail?user_id=abc", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/listing/detail?id=missing", nil)
	assert.Equal(t, response.CodeNotFound, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/listing/list?type=barter", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/package/list", nil)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, response.CodeBusy, errorCode(service.ErrBusy))
	assert.Equal(t, response.CodeAlreadySold, errorCode(service.ErrAlreadySold))
	assert.Equal(t, response.CodeServerError, errorCode(assert.AnError))
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.createUser(t, "admin", model.RoleAdmin, 0)
	seller := s.createUser(t, "seller", model.RoleSeller, 0)

	resp := s.do(t, http.MethodPost, "/api/v1/package/create", gin.H{
		"operator_id": admin, "name": "bronze", "price": 50_000, "duration_days": 30, "listing_limit": 5,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var pkg model.Package
	require.NoError(t, json.Unmarshal(resp.Data, &pkg))

	update := gin.H{
		"operator_id": seller, "package_id": pkg.ID, "name": "bronze", "price": 60_000, "duration_days": 45, "listing_limit": 8,
	}
	resp = s.do(t, http.MethodPost, "/api/v1/package/update", update)
	assert.Equal(t, response.CodeParamError, resp.Code)

	update["operator_id"] = admin
	resp = s.do(t, http.MethodPost, "/api/v1/package/update", update)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var updated model.Package
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, int64(60_000), updated.Price)
	assert.Equal(t, 8, updated.ListingLimit)

	resp = s.do(t, http.MethodGet, "/api/v1/user/list?operator_id="+itoa(seller), nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/v1/user/list?operator_id="+itoa(admin)+"&page=1&page_size=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var page struct {
		List  []model.User `json:"list"`
		Total int64        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.List, 1)
	assert.Equal(t, admin, page.List[0].ID)
}
