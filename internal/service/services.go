package service

import (
	"simmarket/internal/config"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/repository"
	"simmarket/pkg/clock"
)

// Services 组装全部业务 service，共享同一套存储、锁和时钟
type Services struct {
	Ledger   *LedgerService
	Auction  *AuctionService
	Purchase *PurchaseService
	Listing  *ListingService
	Package  *PackageService
	Account  *AccountService
}

func NewServices(repo repository.Repository, locker lock.Locker, clk clock.Clock, cfg *config.Config) *Services {
	return &Services{
		Ledger:   NewLedgerService(repo, locker, clk, cfg),
		Auction:  NewAuctionService(repo, locker, clk, cfg),
		Purchase: NewPurchaseService(repo, locker, clk, cfg),
		Listing:  NewListingService(repo, locker, clk, cfg),
		Package:  NewPackageService(repo, locker, clk, cfg),
		Account:  NewAccountService(repo, locker, clk, cfg),
	}
}
