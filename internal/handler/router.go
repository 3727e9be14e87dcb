package handler

import (
	"simmarket/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svc *service.Services) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(svc)

	api := r.Group("/api/v1")
	{
		user := api.Group("/user")
		{
			user.POST("/create", h.CreateUser)
			user.GET("/detail", h.GetUser)
			user.GET("/transactions", h.ListTransactions)
			user.GET("/list", h.ListUsers)
		}

		wallet := api.Group("/wallet")
		{
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdraw", h.Withdraw)
			wallet.POST("/transaction", h.ApplyTransaction)
		}

		listing := api.Group("/listing")
		{
			listing.POST("/create", h.CreateListing)
			listing.GET("/detail", h.GetListing)
			listing.GET("/list", h.ListListings)
			listing.GET("/can-list", h.CanList)
			listing.POST("/purchase", h.Purchase)
		}

		auction := api.Group("/auction")
		{
			auction.POST("/bid", h.PlaceBid)
		}

		pkg := api.Group("/package")
		{
			pkg.POST("/create", h.CreatePackage)
			pkg.POST("/update", h.UpdatePackage)
			pkg.GET("/list", h.ListPackages)
			pkg.POST("/buy", h.BuyPackage)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
