package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/handler"
	"qrcollect/internal/infrastructure/cache"
	"qrcollect/internal/infrastructure/database"
	"qrcollect/internal/infrastructure/lock"
	"qrcollect/internal/infrastructure/mq"
	"qrcollect/internal/infrastructure/storage"
	"qrcollect/internal/job"
	"qrcollect/internal/logger"
	"qrcollect/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "雪花算法机器ID")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger.Init(cfg.Log)
	defer logger.Sync()

	// 初始化 ID 生成器
	idgen.Init(*workerID)

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		logger.Errorw("初始化 MySQL 失败", "error", err)
		os.Exit(1)
	}

	// 工单锁：多实例部署时使用 Redis，单实例可退化为进程内锁
	var locks lock.Factory = lock.NewMemoryFactory()
	if cfg.Redis.Enabled {
		redisClient, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Errorw("初始化 Redis 失败", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locks = lock.NewRedisFactory(redisClient)
	}

	h, err := handler.NewHandler(handler.Deps{
		DB:      db,
		Config:  cfg,
		Storage: storage.NewLocalStorage(cfg.Storage),
		Locks:   locks,
	})
	if err != nil {
		logger.Errorw("初始化处理器失败", "error", err)
		os.Exit(1)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			logger.Errorw("初始化 Kafka 失败", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, cfg, producer)
		go outboxSender.Start(ctx)
	}

	if cfg.Business.AutoReset {
		resetJob, err := job.NewPeriodResetJob(&cfg.Business, h.Allocator())
		if err != nil {
			logger.Errorw("初始化定时重置任务失败", "error", err)
			os.Exit(1)
		}
		go resetJob.Start(ctx)
	}

	// 设置路由
	router := handler.SetupRouter(h, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logger.Infow("服务启动", "port", cfg.Server.Port, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("服务关闭异常", "error", err)
	}

	logger.Infow("服务已关闭")
}
