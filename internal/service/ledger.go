package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
	"simmarket/pkg/idgen"

	"github.com/sirupsen/logrus"
)

// core 各个 service 共用的依赖与记账原语
type core struct {
	repo   repository.Repository
	locker lock.Locker
	clock  clock.Clock
	cfg    *config.Config
	log    *logrus.Entry
}

func newCore(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config, component string) *core {
	return &core{
		repo:   repo,
		locker: locker,
		clock:  clk,
		cfg:    cfg,
		log:    logrus.WithField("component", component),
	}
}

// atomic 先拿请求级锁，再在同一个存储事务里执行 fn
func (c *core) atomic(ctx context.Context, keys []string, fn func(ctx context.Context, st repository.Store) error) error {
	unlock, err := c.locker.Lock(ctx, keys...)
	if err != nil {
		return lockErr(err)
	}
	defer unlock()

	return txErr(c.repo.WithinTx(ctx, fn))
}

// loadUsers 按用户 ID 升序读取，事务内即按同一顺序加行锁，重复 ID 只读一次
func loadUsers(ctx context.Context, st repository.Store, ids ...int64) (map[int64]*model.User, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	users := make(map[int64]*model.User, len(sorted))
	for _, id := range sorted {
		if _, ok := users[id]; ok {
			continue
		}
		user, err := st.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users[id] = user
	}
	return users, nil
}

// applyTransaction 记账：修改可用余额并追加一条流水，二者在调用方的事务中一起提交。
// 不影响冻结余额。
func (c *core) applyTransaction(ctx context.Context, st repository.Store, user *model.User,
	amount int64, kind, description, listingID string) (*model.Transaction, error) {

	if !model.KindAllowsAmount(kind, amount) {
		return nil, fmt.Errorf("%w: 金额 %d 与流水类型 %s 不匹配", ErrInvalidRequest, amount, kind)
	}
	if amount < 0 && user.WalletBalance < -amount {
		return nil, fmt.Errorf("%w: 可用余额 %d，需要 %d", ErrInsufficientFunds, user.WalletBalance, -amount)
	}

	before := user.TotalFunds()
	user.WalletBalance += amount
	if err := st.SaveUser(ctx, user); err != nil {
		return nil, storeErr(err, "更新钱包失败")
	}

	return c.record(ctx, st, user, amount, kind, description, listingID, before)
}

// settleHold 竞拍成交：从冻结资金中扣款，记一条 purchase 流水，冻结单置为 SETTLED
func (c *core) settleHold(ctx context.Context, st repository.Store, user *model.User,
	hold *model.Hold, description string) (*model.Transaction, error) {

	if hold.Status != model.HoldStatusActive || hold.UserID != user.ID {
		return nil, fmt.Errorf("冻结单状态异常: holdID=%d, status=%s", hold.ID, hold.Status)
	}
	if user.BlockedBalance < hold.Amount {
		return nil, fmt.Errorf("冻结余额不足: userID=%d, blocked=%d, hold=%d", user.ID, user.BlockedBalance, hold.Amount)
	}

	before := user.TotalFunds()
	user.BlockedBalance -= hold.Amount
	if err := st.SaveUser(ctx, user); err != nil {
		return nil, storeErr(err, "更新钱包失败")
	}

	hold.Status = model.HoldStatusSettled
	hold.UpdatedAt = c.clock.Now()
	if err := st.SaveHold(ctx, hold); err != nil {
		return nil, storeErr(err, "更新冻结单失败")
	}

	return c.record(ctx, st, user, -hold.Amount, model.TransactionKindPurchase, description, hold.ListingID, before)
}

// releaseHold 解冻：资金退回可用余额，总资金不变，不记流水
func (c *core) releaseHold(ctx context.Context, st repository.Store, user *model.User, hold *model.Hold, reason string) error {
	if user.BlockedBalance < hold.Amount {
		return fmt.Errorf("冻结余额不足: userID=%d, blocked=%d, hold=%d", user.ID, user.BlockedBalance, hold.Amount)
	}

	user.BlockedBalance -= hold.Amount
	user.WalletBalance += hold.Amount
	if err := st.SaveUser(ctx, user); err != nil {
		return storeErr(err, "更新钱包失败")
	}

	hold.Status = model.HoldStatusReleased
	hold.UpdatedAt = c.clock.Now()
	if err := st.SaveHold(ctx, hold); err != nil {
		return storeErr(err, "更新冻结单失败")
	}

	return c.emit(ctx, st, model.EventHoldReleased, hold.ListingID, map[string]interface{}{
		"hold_id":    hold.ID,
		"listing_id": hold.ListingID,
		"user_id":    hold.UserID,
		"amount":     hold.Amount,
		"reason":     reason,
	})
}

func (c *core) record(ctx context.Context, st repository.Store, user *model.User,
	amount int64, kind, description, listingID string, before int64) (*model.Transaction, error) {

	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        user.ID,
		ListingID:     listingID,
		Amount:        amount,
		Kind:          kind,
		Description:   description,
		BalanceBefore: before,
		BalanceAfter:  user.TotalFunds(),
		CreatedAt:     c.clock.Now(),
	}
	if err := st.AppendTransaction(ctx, trans); err != nil {
		return nil, storeErr(err, "记录流水失败")
	}

	err := c.emit(ctx, st, model.EventTransactionRecorded, trans.TransactionNo, map[string]interface{}{
		"transaction_no": trans.TransactionNo,
		"user_id":        trans.UserID,
		"listing_id":     trans.ListingID,
		"amount":         trans.Amount,
		"kind":           trans.Kind,
		"balance_after":  trans.BalanceAfter,
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// emit 写入 outbox，与业务数据同事务提交
func (c *core) emit(ctx context.Context, st repository.Store, eventType, key string, payload map[string]interface{}) error {
	payload["event_type"] = eventType
	payload["occurred_at"] = c.clock.Now().Format(time.RFC3339)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      c.cfg.Kafka.Topic.MarketEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := st.AppendOutbox(ctx, msg); err != nil {
		return storeErr(err, "写入消息失败")
	}
	return nil
}

// ============================================================================
// LedgerService 对外的记账入口
// ============================================================================

type LedgerService struct {
	*core
}

func NewLedgerService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *LedgerService {
	return &LedgerService{core: newCore(repo, locker, clk, cfg, "ledger")}
}

type TransactionRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Description string `json:"description"`
	ListingID   string `json:"listing_id"`
}

type WalletResponse struct {
	Transaction    *model.Transaction `json:"transaction"`
	WalletBalance  int64              `json:"wallet_balance"`
	BlockedBalance int64              `json:"blocked_balance"`
}

func (s *LedgerService) ApplyTransaction(ctx context.Context, req *TransactionRequest) (*WalletResponse, error) {
	var resp *WalletResponse
	err := s.atomic(ctx, []string{lock.UserKey(req.UserID)}, func(ctx context.Context, st repository.Store) error {
		user, err := st.GetUser(ctx, req.UserID)
		if err != nil {
			return storeErr(err, "查询用户失败")
		}

		trans, err := s.applyTransaction(ctx, st, user, req.Amount, req.Kind, req.Description, req.ListingID)
		if err != nil {
			return err
		}

		resp = &WalletResponse{
			Transaction:    trans,
			WalletBalance:  user.WalletBalance,
			BlockedBalance: user.BlockedBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("记账成功: userID=%d, kind=%s, amount=%d, txn=%s",
		req.UserID, req.Kind, req.Amount, resp.Transaction.TransactionNo)
	return resp, nil
}

func (s *LedgerService) Deposit(ctx context.Context, userID, amount int64) (*WalletResponse, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: 充值金额必须大于0", ErrInvalidRequest)
	}
	return s.ApplyTransaction(ctx, &TransactionRequest{
		UserID:      userID,
		Amount:      amount,
		Kind:        model.TransactionKindDeposit,
		Description: "钱包充值",
	})
}

func (s *LedgerService) Withdraw(ctx context.Context, userID, amount int64) (*WalletResponse, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: 提现金额必须大于0", ErrInvalidRequest)
	}
	return s.ApplyTransaction(ctx, &TransactionRequest{
		UserID:      userID,
		Amount:      -amount,
		Kind:        model.TransactionKindWithdrawal,
		Description: "钱包提现",
	})
}
