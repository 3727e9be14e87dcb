package service

import (
	"context"
	"fmt"
	"strings"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
)

type AccountService struct {
	*core
}

func NewAccountService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *AccountService {
	return &AccountService{core: newCore(repo, locker, clk, cfg, "account")}
}

type CreateUserRequest struct {
	Name           string `json:"name" binding:"required"`
	Role           string `json:"role" binding:"required"`
	InitialBalance int64  `json:"initial_balance" binding:"gte=0"`
}

// CreateUser 初始余额记为一笔充值流水，保证流水之和与余额对得上
func (s *AccountService) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: 用户名不能为空", ErrInvalidRequest)
	}
	if !model.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: 未知角色 %s", ErrInvalidRequest, req.Role)
	}
	if req.InitialBalance < 0 {
		return nil, fmt.Errorf("%w: 初始余额不能为负数", ErrInvalidRequest)
	}

	var user *model.User
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		now := s.clock.Now()
		user = &model.User{
			Name:      strings.TrimSpace(req.Name),
			Role:      req.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateUser(ctx, user); err != nil {
			return storeErr(err, "创建用户失败")
		}
		if req.InitialBalance > 0 {
			_, err := s.applyTransaction(ctx, st, user, req.InitialBalance, model.TransactionKindDeposit, "初始余额", "")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("创建用户: id=%d, role=%s, balance=%d", user.ID, user.Role, user.WalletBalance)
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "查询用户失败")
	}
	return user, nil
}

type TransactionListResponse struct {
	List  []*model.Transaction `json:"list"`
	Total int64                `json:"total"`
}

func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) (*TransactionListResponse, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, storeErr(err, "查询用户失败")
	}
	list, total, err := s.repo.ListTransactions(ctx, userID, page, pageSize)
	if err != nil {
		return nil, storeErr(err, "查询流水失败")
	}
	return &TransactionListResponse{List: list, Total: total}, nil
}

type UserListResponse struct {
	List  []*model.User `json:"list"`
	Total int64         `json:"total"`
}

// ListUsers 管理员分页查看用户
func (s *AccountService) ListUsers(ctx context.Context, operatorID int64, page, pageSize int) (*UserListResponse, error) {
	if err := requireAdmin(ctx, s.repo, operatorID, "查看用户列表"); err != nil {
		return nil, err
	}
	list, total, err := s.repo.ListUsers(ctx, page, pageSize)
	if err != nil {
		return nil, storeErr(err, "查询用户列表失败")
	}
	return &UserListResponse{List: list, Total: total}, nil
}
