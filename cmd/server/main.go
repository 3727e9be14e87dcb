package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/handler"
	"simmarket/internal/infrastructure/cache"
	"simmarket/internal/infrastructure/database"
	"simmarket/internal/infrastructure/lock"
	"simmarket/internal/infrastructure/mq"
	"simmarket/internal/job"
	"simmarket/internal/repository"
	"simmarket/internal/service"
	"simmarket/pkg/clock"
	"simmarket/pkg/idgen"

	"github.com/sirupsen/logrus"
)

func setupLogger(cfg *config.LogConfig) {
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func main() {
	configPath := os.Getenv("MARKET_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	setupLogger(&cfg.Log)

	// 初始化 ID 生成器
	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		logrus.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo   repository.Repository
		outbox repository.OutboxStore
		locker lock.Locker = lock.NewLocalLocker()
	)

	switch cfg.Store.Backend {
	case config.StoreBackendGorm:
		db, err := database.Init(&cfg.Database)
		if err != nil {
			logrus.Fatalf("初始化数据库失败: %v", err)
		}
		store := repository.NewGormStore(db)
		repo, outbox = store, store.Outbox()

		// 多实例部署时用 Redis 锁
		if cfg.Redis.Enabled {
			redisClient, err := cache.NewRedis(&cfg.Redis)
			if err != nil {
				logrus.Fatalf("初始化 Redis 失败: %v", err)
			}
			defer redisClient.Close()
			locker = lock.NewRedisLocker(redisClient,
				time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
				time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
				cfg.Business.LockMaxRetries)
		}
	default:
		store := repository.NewMemoryStore()
		repo, outbox = store, store
		logrus.Warn("使用内存存储，进程退出后数据丢失")
	}

	svc := service.NewServices(repo, locker, clock.System(), cfg)
	if err := svc.Package.EnsureDefaults(ctx, cfg.Business.DefaultPackages); err != nil {
		logrus.Fatalf("写入默认套餐失败: %v", err)
	}

	// 启动后台任务
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			logrus.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(outbox, publisher, cfg)
		go outboxSender.Start(ctx)
	} else {
		logrus.Warn("未配置 Kafka，事件只写入 outbox 表")
	}

	reconcileJob := job.NewHoldReconcileJob(repo, cfg.Business.ReconcileSpec)
	if err := reconcileJob.Start(); err != nil {
		logrus.Fatalf("启动冻结对账任务失败: %v", err)
	}

	// 设置路由
	router := handler.SetupRouter(svc)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logrus.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()
	<-reconcileJob.Stop().Done()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("服务关闭异常: %v", err)
	}

	logrus.Info("服务已关闭")
}
