package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/journey-ad/telerelay/internal/app"
	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
)

func main() {
	// 初始化 logger
	logger.Init()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	// 初始化应用
	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动 Bot 更新轮询（阻塞式，放在 goroutine 中）
	go func() {
		if err := application.Bot.Start(ctx); err != nil {
			logger.L().Errorf("Bot polling stopped with error: %v", err)
		}
	}()

	// 启动转发管道
	if err := application.Manager.Start(ctx); err != nil {
		logger.L().Fatalf("Failed to start forwarding manager: %v", err)
	}
	logger.L().Info("Telerelay is up and running")

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.L().Infof("Received signal %s, shutting down...", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer shutdownCancel()

	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Shutdown finished with error: %v", err)
		os.Exit(1)
	}
	logger.L().Info("Shutdown complete")
}
