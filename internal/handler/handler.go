package handler

import (
	"errors"
	"strconv"

	"simmarket/internal/repository"
	"simmarket/internal/service"
	"simmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc *service.Services
}

// NewHandler 创建处理器实例
func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

// errorCodes 业务错误到响应码的映射，按顺序匹配
var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrInvalidRequest, response.CodeParamError},
	{service.ErrNotFound, response.CodeNotFound},
	{service.ErrInsufficientFunds, response.CodeInsufficientFunds},
	{service.ErrBidTooLow, response.CodeBidTooLow},
	{service.ErrAuctionClosed, response.CodeAuctionClosed},
	{service.ErrNotAuctionWinner, response.CodeNotAuctionWinner},
	{service.ErrAlreadySold, response.CodeAlreadySold},
	{service.ErrQuotaExceeded, response.CodeQuotaExceeded},
	{service.ErrBusy, response.CodeBusy},
}

func errorCode(err error) int {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return response.CodeServerError
}

func fail(c *gin.Context, err error) {
	code := errorCode(err)
	if code == response.CodeServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("请求处理失败")
		response.ServerError(c, "服务器内部错误")
		return
	}
	response.BusinessError(c, code, err.Error())
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// ============================================================
// 用户相关接口
// ============================================================

// CreateUser 创建用户
// POST /api/v1/user/create
func (h *Handler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.svc.Account.CreateUser(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, user)
}

// GetUser 查询用户及钱包
// GET /api/v1/user/detail?user_id=xxx
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	user, err := h.svc.Account.GetUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, user)
}

// ListTransactions 查询钱包流水
// GET /api/v1/user/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.svc.Account.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      result.List,
		"total":     result.Total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListUsers 用户列表（管理员）
// GET /api/v1/user/list?operator_id=xxx&page=1&page_size=20
func (h *Handler) ListUsers(c *gin.Context) {
	operatorID, ok := queryInt64(c, "operator_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.svc.Account.ListUsers(c.Request.Context(), operatorID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      result.List,
		"total":     result.Total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 钱包相关接口
// ============================================================

type amountRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// Deposit 充值（简化版，不对接支付渠道）
// POST /api/v1/wallet/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Ledger.Deposit(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// Withdraw 提现
// POST /api/v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Ledger.Withdraw(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ApplyTransaction 通用记账
// POST /api/v1/wallet/transaction
func (h *Handler) ApplyTransaction(c *gin.Context) {
	var req service.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Ledger.ApplyTransaction(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 挂单相关接口
// ============================================================

// CreateListing 发布挂单
// POST /api/v1/listing/create
func (h *Handler) CreateListing(c *gin.Context) {
	var req service.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	listing, err := h.svc.Listing.CreateListing(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, listing)
}

// GetListing 查询挂单详情（含出价记录）
// GET /api/v1/listing/detail?id=xxx
func (h *Handler) GetListing(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.ParamError(c, "id 参数不能为空")
		return
	}

	listing, err := h.svc.Listing.GetListing(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, listing)
}

// ListListings 查询挂单列表
// GET /api/v1/listing/list?seller_id=&status=&type=&page=1&page_size=20
func (h *Handler) ListListings(c *gin.Context) {
	var filter repository.ListingFilter
	if s := c.Query("seller_id"); s != "" {
		sellerID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			response.ParamError(c, "seller_id 参数错误")
			return
		}
		filter.SellerID = sellerID
	}
	filter.Status = c.Query("status")
	filter.Type = c.Query("type")
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.svc.Listing.ListListings(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      result.List,
		"total":     result.Total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// CanList 查询卖家挂单额度
// GET /api/v1/listing/can-list?seller_id=xxx
func (h *Handler) CanList(c *gin.Context) {
	sellerID, ok := queryInt64(c, "seller_id")
	if !ok {
		return
	}

	info, err := h.svc.Listing.CanList(c.Request.Context(), sellerID)
	if err != nil {
		if errors.Is(err, service.ErrQuotaExceeded) {
			response.ErrorWithData(c, response.CodeQuotaExceeded, err.Error(), info)
			return
		}
		fail(c, err)
		return
	}
	response.Success(c, info)
}

// Purchase 购买号码
// POST /api/v1/listing/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Purchase.PurchaseSim(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 竞拍相关接口
// ============================================================

// PlaceBid 出价
// POST /api/v1/auction/bid
func (h *Handler) PlaceBid(c *gin.Context) {
	var req service.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Auction.PlaceBid(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 套餐相关接口
// ============================================================

// CreatePackage 创建套餐（管理员）
// POST /api/v1/package/create
func (h *Handler) CreatePackage(c *gin.Context) {
	var req service.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pkg, err := h.svc.Package.CreatePackage(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pkg)
}

// UpdatePackage 修改套餐（管理员）
// POST /api/v1/package/update
func (h *Handler) UpdatePackage(c *gin.Context) {
	var req service.UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pkg, err := h.svc.Package.UpdatePackage(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pkg)
}

// ListPackages 套餐列表
// GET /api/v1/package/list
func (h *Handler) ListPackages(c *gin.Context) {
	pkgs, err := h.svc.Package.ListPackages(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": pkgs})
}

// BuyPackage 购买套餐
// POST /api/v1/package/buy
func (h *Handler) BuyPackage(c *gin.Context) {
	var req service.BuyPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Package.BuyPackage(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}
