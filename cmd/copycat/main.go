package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/copycat/internal/common"
	"github.com/betbot/copycat/internal/discovery"
	"github.com/betbot/copycat/internal/domain"
	"github.com/betbot/copycat/internal/exchange"
	"github.com/betbot/copycat/internal/executor"
	"github.com/betbot/copycat/internal/sizing"
	"github.com/betbot/copycat/internal/store"
	"github.com/betbot/copycat/internal/walletset"
	"github.com/betbot/copycat/pkg/config"
	"github.com/betbot/copycat/pkg/logger"
	"github.com/betbot/copycat/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选，环境变量优先）")
	envPath := flag.String("env", ".env", ".env 文件路径")
	flag.Parse()

	// .env 不存在不算错误，环境变量可能由部署环境注入
	_ = godotenv.Load(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("copycat 启动: mode=%s dryRun=%v wallets=%s", cfg.Order.Mode, cfg.DryRun, cfg.WalletsFile)

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Errorf("打开数据库失败: %v", err)
		os.Exit(1)
	}
	defer s.Close()

	adapter, err := buildAdapter(cfg)
	if err != nil {
		logger.Errorf("初始化交易所客户端失败: %v", err)
		os.Exit(1)
	}

	sizingCfg := sizing.FromOrderConfig(cfg.Order.Mode, cfg.Order.MinSharePossible, cfg.Order.MarketFixedAmount)
	queue := make(chan domain.CopyOrderRequest, cfg.Loop.QueueSize)

	walletMgr := walletset.NewManager(s, adapter, cfg.WalletsFile)
	discoveryLoop := discovery.NewLoop(s, adapter, sizingCfg, queue, cfg.Loop.FetchLimit)
	execLoop := executor.NewLoop(s, adapter, sizingCfg, queue, executor.Config{
		Workers:      cfg.Loop.Workers,
		LimitTimeout: time.Duration(cfg.Order.LimitTimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.Order.StatusPollSec) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 先收敛上次进程留下的非终态交易，再开新环路
	if err := execLoop.Recover(ctx); err != nil {
		logger.Warnf("启动恢复未完全成功: %v", err)
	}

	mgr := shutdown.NewManager()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		common.RunEvery(ctx, time.Duration(cfg.Loop.WalletReconcileSec)*time.Second, func(ctx context.Context) {
			if err := walletMgr.Cycle(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("钱包对账失败: %v", err)
			}
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		common.RunEvery(ctx, time.Duration(cfg.Loop.DiscoverySec)*time.Second, func(ctx context.Context) {
			if err := discoveryLoop.Cycle(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("交易发现失败: %v", err)
			}
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		execLoop.Run(ctx)
	}()

	mgr.OnShutdown(func(shutdownCtx context.Context) {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到信号 %v，开始关闭", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)

	logger.Infof("copycat 已退出")
}

// buildAdapter 按配置构建交易所适配器
func buildAdapter(cfg *config.Config) (exchange.Adapter, error) {
	if cfg.DryRun {
		if cfg.Wallet.PrivateKey == "" {
			// 纸交易且没有私钥：读操作也用不了真实客户端
			logger.Warnf("DRY RUN 且未配置私钥，历史拉取返回空")
			return &exchange.DryRunAdapter{}, nil
		}
		real, err := exchange.NewPolymarketClient(cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress)
		if err != nil {
			return nil, err
		}
		return &exchange.DryRunAdapter{Real: real}, nil
	}
	return exchange.NewPolymarketClient(cfg.Wallet.PrivateKey, cfg.Wallet.FunderAddress)
}
