package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antidetect/automation/internal/api"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/dispatch"
	"github.com/antidetect/automation/internal/event"
	"github.com/antidetect/automation/internal/infra/persistence/runrepo"
	"github.com/antidetect/automation/internal/infra/persistence/taskrepo"
	"github.com/antidetect/automation/internal/infra/persistence/webhookrepo"
	"github.com/antidetect/automation/internal/orm"
	"github.com/antidetect/automation/internal/scan"
	"github.com/antidetect/automation/internal/scheduler"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"github.com/antidetect/automation/pkg/logger"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 雪花 ID 生成器，运行记录与投递记录依赖它
	var options = idgen.NewIdGeneratorOptions(20)
	options.BaseTime = 1755937966000
	options.WorkerIdBitLength = 6
	idgen.SetIdGenerator(options)

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 创建日志器
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting automation scheduler",
		zap.Duration("tick_interval", cfg.Scheduler.TickInterval))

	// 创建存储
	storageConfig := orm.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		Database:              cfg.Database.Database,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		MaxConnections:        cfg.Database.MaxConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	}

	db, err := orm.New(storageConfig)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 创建repositories
	taskRepo := taskrepo.NewMysqlRepositoryImpl(db.DB())
	runRepo := runrepo.NewMysqlRepositoryImpl(db.DB())
	webhookRepo := webhookrepo.NewMysqlRepositoryImpl(db.DB())

	clk := clock.New()

	// 事件总线，redis 禁用时仅进程内分发
	bus := event.NewBus(ProvideRedisClient(*cfg), zapLogger)

	// webhook 投递器
	dispatcher := dispatch.New(*cfg, webhookRepo, clk, zapLogger)
	dispatcher.Register(bus)
	dispatcher.Start()

	// 扫描服务客户端与运行执行器
	scanClient := scan.NewClient(cfg.Scan, zapLogger)
	runner := scheduler.NewRunner(*cfg, clk, zapLogger, taskRepo, runRepo, bus, scanClient)

	// 调度器
	sched := scheduler.New(*cfg, clk, zapLogger, runner, taskRepo, runRepo)
	sched.Start()

	// usecases + API服务器
	taskUsecase := task.NewUsecase(taskRepo, clk)
	webhookUsecase := webhook.NewUsecase(webhookRepo)

	taskAPI := api.NewTaskAPI(taskUsecase, runRepo, sched, zapLogger)
	webhookAPI := api.NewWebhookAPI(webhookUsecase, dispatcher, zapLogger)
	apiServer := api.NewServer(taskAPI, webhookAPI, zapLogger)

	// 启动HTTP服务器
	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        apiServer.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		zapLogger.Info("Starting API server",
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLogger.Info("Shutting down...")

	// 优雅关闭HTTP服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown API server", zap.Error(err))
	}

	// 先停调度器再停投递器，保证已产生的事件仍能投递
	sched.Stop()
	dispatcher.Stop()

	zapLogger.Info("Shutdown complete")
}
