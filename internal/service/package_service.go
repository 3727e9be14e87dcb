package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/model"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
)

type PackageService struct {
	*core
}

func NewPackageService(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *PackageService {
	return &PackageService{core: newCore(repo, locker, clk, cfg, "package")}
}

type CreatePackageRequest struct {
	OperatorID   int64  `json:"operator_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Price        int64  `json:"price" binding:"required,gt=0"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
	ListingLimit int    `json:"listing_limit" binding:"required,gt=0"`
	Description  string `json:"description"`
}

type UpdatePackageRequest struct {
	OperatorID   int64  `json:"operator_id" binding:"required"`
	PackageID    int64  `json:"package_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Price        int64  `json:"price" binding:"required,gt=0"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
	ListingLimit int    `json:"listing_limit" binding:"required,gt=0"`
	Description  string `json:"description"`
}

type BuyPackageRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	PackageID int64 `json:"package_id" binding:"required"`
}

type BuyPackageResponse struct {
	PackageID     int64     `json:"package_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	TransactionNo string    `json:"transaction_no"`
	WalletBalance int64     `json:"wallet_balance"`
}

func validatePackage(name string, price int64, days, limit int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: 套餐名称不能为空", ErrInvalidRequest)
	}
	if price <= 0 || days <= 0 || limit <= 0 {
		return fmt.Errorf("%w: 价格、时长、挂单上限必须大于0", ErrInvalidRequest)
	}
	return nil
}

func requireAdmin(ctx context.Context, st repository.Store, operatorID int64, action string) error {
	operator, err := st.GetUser(ctx, operatorID)
	if err != nil {
		return storeErr(err, "查询操作人失败")
	}
	if operator.Role != model.RoleAdmin {
		return fmt.Errorf("%w: 只有管理员可以%s", ErrInvalidRequest, action)
	}
	return nil
}

// CreatePackage 仅管理员可以创建
func (s *PackageService) CreatePackage(ctx context.Context, req *CreatePackageRequest) (*model.Package, error) {
	if err := validatePackage(req.Name, req.Price, req.DurationDays, req.ListingLimit); err != nil {
		return nil, err
	}

	if err := requireAdmin(ctx, s.repo, req.OperatorID, "创建套餐"); err != nil {
		return nil, err
	}

	pkg := &model.Package{
		Name:         strings.TrimSpace(req.Name),
		Price:        req.Price,
		DurationDays: req.DurationDays,
		ListingLimit: req.ListingLimit,
		Description:  req.Description,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreatePackage(ctx, pkg); err != nil {
		return nil, storeErr(err, "创建套餐失败")
	}

	s.log.Infof("创建套餐: id=%d, name=%s, limit=%d", pkg.ID, pkg.Name, pkg.ListingLimit)
	return pkg, nil
}

// UpdatePackage 管理员修改套餐。
// 已购买者的到期时间不变，新的挂单上限在下一次额度校验时生效。
func (s *PackageService) UpdatePackage(ctx context.Context, req *UpdatePackageRequest) (*model.Package, error) {
	if err := validatePackage(req.Name, req.Price, req.DurationDays, req.ListingLimit); err != nil {
		return nil, err
	}

	var pkg *model.Package
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if err := requireAdmin(ctx, st, req.OperatorID, "修改套餐"); err != nil {
			return err
		}
		var err error
		pkg, err = st.GetPackage(ctx, req.PackageID)
		if err != nil {
			return storeErr(err, "查询套餐失败")
		}

		pkg.Name = strings.TrimSpace(req.Name)
		pkg.Price = req.Price
		pkg.DurationDays = req.DurationDays
		pkg.ListingLimit = req.ListingLimit
		pkg.Description = req.Description
		if err := st.SavePackage(ctx, pkg); err != nil {
			return storeErr(err, "更新套餐失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("修改套餐: id=%d, price=%d, days=%d, limit=%d", pkg.ID, pkg.Price, pkg.DurationDays, pkg.ListingLimit)
	return pkg, nil
}

func (s *PackageService) ListPackages(ctx context.Context) ([]*model.Package, error) {
	pkgs, err := s.repo.ListPackages(ctx)
	if err != nil {
		return nil, storeErr(err, "查询套餐失败")
	}
	return pkgs, nil
}

// BuyPackage 扣款并开通套餐，有效期从现在起算，覆盖原有套餐
func (s *PackageService) BuyPackage(ctx context.Context, req *BuyPackageRequest) (*BuyPackageResponse, error) {
	var resp *BuyPackageResponse
	err := s.atomic(ctx, []string{lock.UserKey(req.UserID)}, func(ctx context.Context, st repository.Store) error {
		user, err := st.GetUser(ctx, req.UserID)
		if err != nil {
			return storeErr(err, "查询用户失败")
		}
		pkg, err := st.GetPackage(ctx, req.PackageID)
		if err != nil {
			return storeErr(err, "查询套餐失败")
		}

		pkgID := pkg.ID
		expiresAt := s.clock.Now().AddDate(0, 0, pkg.DurationDays)
		user.PackageID = &pkgID
		user.PackageExpiresAt = &expiresAt

		trans, err := s.applyTransaction(ctx, st, user, -pkg.Price, model.TransactionKindPurchase,
			fmt.Sprintf("购买套餐-%s", pkg.Name), "")
		if err != nil {
			return err
		}

		err = s.emit(ctx, st, model.EventPackagePurchased, trans.TransactionNo, map[string]interface{}{
			"user_id":    user.ID,
			"package_id": pkg.ID,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		resp = &BuyPackageResponse{
			PackageID:     pkg.ID,
			ExpiresAt:     expiresAt,
			TransactionNo: trans.TransactionNo,
			WalletBalance: user.WalletBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("购买套餐成功: userID=%d, packageID=%d, expiresAt=%s",
		req.UserID, resp.PackageID, resp.ExpiresAt.Format(time.RFC3339))
	return resp, nil
}

// EnsureDefaults 套餐表为空时写入默认套餐
func (s *PackageService) EnsureDefaults(ctx context.Context, defaults []config.PackageConfig) error {
	if len(defaults) == 0 {
		return nil
	}

	created := 0
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		existing, err := st.ListPackages(ctx)
		if err != nil {
			return storeErr(err, "查询套餐失败")
		}
		if len(existing) > 0 {
			return nil
		}

		for _, d := range defaults {
			if err := validatePackage(d.Name, d.Price, d.DurationDays, d.ListingLimit); err != nil {
				return fmt.Errorf("默认套餐 %s 配置错误: %w", d.Name, err)
			}
			pkg := &model.Package{
				Name:         d.Name,
				Price:        d.Price,
				DurationDays: d.DurationDays,
				ListingLimit: d.ListingLimit,
				Description:  d.Description,
				CreatedAt:    s.clock.Now(),
			}
			if err := st.CreatePackage(ctx, pkg); err != nil {
				return storeErr(err, "创建默认套餐失败")
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if created > 0 {
		s.log.Infof("已写入默认套餐 %d 个", created)
	}
	return nil
}
