package service

import (
	"errors"
	"fmt"

	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/repository"
)

// 业务错误，handler 通过 errors.Is 映射为业务码
var (
	ErrNotFound          = errors.New("记录不存在")
	ErrInsufficientFunds = errors.New("余额不足")
	ErrBidTooLow         = errors.New("出价必须高于当前价格")
	ErrAuctionClosed     = errors.New("竞拍已结束")
	ErrNotAuctionWinner  = errors.New("只有最高出价者可以购买")
	ErrAlreadySold       = errors.New("该号码已售出")
	ErrQuotaExceeded     = errors.New("在售挂单数已达套餐上限")
	ErrInvalidRequest    = errors.New("请求参数错误")
	ErrBusy              = errors.New("系统繁忙，请稍后重试")
)

// storeErr 把存储层错误翻译为业务错误
func storeErr(err error, action string) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrListingNotFound),
		errors.Is(err, repository.ErrPackageNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case repository.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// txErr 提交阶段的死锁/序列化失败同样按繁忙处理
func txErr(err error) error {
	if err == nil || errors.Is(err, ErrBusy) || !repository.IsConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

func lockErr(err error) error {
	if errors.Is(err, lock.ErrLockFailed) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
