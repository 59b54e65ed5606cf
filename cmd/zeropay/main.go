package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"zeropay.com/config"
	"zeropay.com/internal/core/matcher"
	"zeropay.com/internal/core/scanner"
	"zeropay.com/internal/core/settle"
	"zeropay.com/internal/core/webhook"
	"zeropay.com/internal/core/x402"
	httpapi "zeropay.com/internal/http"
	"zeropay.com/internal/infra/ethereum"
	"zeropay.com/internal/infra/persistence"
	"zeropay.com/pkg/hdwallet"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/orm"
	"zeropay.com/pkg/ratelimit"
	"zeropay.com/pkg/safe"
	"zeropay.com/pkg/xredis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 2. 初始化基础设施
	logger.Init("zeropay", cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := orm.NewMySQL(&orm.Config{
		DSN:         cfg.DatabaseURL,
		MaxIdle:     10,
		MaxOpen:     100,
		MaxLifetime: 3600,
	})
	if err != nil {
		logger.Fatal(ctx, "🔥 Failed to connect to the database", zap.Error(err))
	}
	if err := persistence.AutoMigrate(db); err != nil {
		logger.Fatal(ctx, "🔥 Migrations failed", zap.Error(err))
	}
	logger.Info(ctx, "✅ Connection to the database is successful!")

	rdb, err := xredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal(ctx, "🔥 Failed to connect to Redis", zap.Error(err))
	}
	logger.Info(ctx, "✅ Redis connection established!")

	// 3. 初始化组件 (依赖注入)

	// A. 钱包：所有客户地址从助记词推导
	wallet, err := hdwallet.New(cfg.Mnemonics)
	if err != nil {
		logger.Fatal(ctx, "🔥 Invalid mnemonics", zap.Error(err))
	}

	// B. Repo (数据持久化)
	repo := persistence.New(db)

	// 单租户模式：环境变量固化一个默认商户
	if cfg.Apikey != "" {
		if _, err := repo.BootstrapDefault(ctx, cfg.Apikey, cfg.Wallet, cfg.Webhook); err != nil {
			logger.Fatal(ctx, "🔥 bootstrap default merchant failed", zap.Error(err))
		}
		logger.Info(ctx, "default merchant ready", zap.String("wallet", cfg.Wallet))
	}

	// C. 地址监控集合 + 回调 + matcher
	book := matcher.NewAddressBook(rdb, repo)
	if err := book.Load(ctx); err != nil {
		logger.Fatal(ctx, "🔥 load address book failed", zap.Error(err))
	}

	notifier := webhook.NewNotifier(rdb, repo, 2)
	notifier.Start(ctx)

	m := matcher.New(repo, repo, repo, repo, book, notifier)
	customers := matcher.NewCustomerService(repo, wallet, book)

	// D. 每条链一组 watcher + executor
	breaker := ratelimit.NewManager(ratelimit.Rule{})
	rangeLock := xredis.NewRangeLock(rdb)
	facilitator := x402.NewFacilitator()

	for i := range cfg.Scanner.Chains {
		chain := &cfg.Scanner.Chains[i]

		adapter, err := ethereum.New(ctx, chain.ChainName, chain.Rpc, chain.Admin, chain.Latency, breaker)
		if err != nil {
			logger.Fatal(ctx, "🔥 chain adapter init failed",
				zap.String("chain", chain.ChainName), zap.Error(err))
		}

		entries, _ := chain.TokenEntries()
		for _, entry := range entries {
			if err := adapter.AddToken(ctx, entry[0], entry[1]); err != nil {
				logger.Fatal(ctx, "🔥 token init failed",
					zap.String("chain", chain.ChainName),
					zap.String("token", entry[0]),
					zap.Error(err))
			}
		}

		executor := settle.New(
			&settle.Config{
				Chain: chain.ChainName,
				Commission: settle.CommissionCfg{
					Pct: chain.Commission,
					Min: chain.CommissionMin,
					Max: chain.CommissionMax,
				},
				Concurrency: 4,
			},
			adapter, wallet, repo, repo, repo, m,
		)
		m.RegisterSettler(chain.ChainName, executor)

		engine := scanner.New(
			&scanner.Config{
				Chain:    chain.ChainName,
				Interval: 5 * time.Second,
				Latency:  chain.Latency,
			},
			adapter, m, repo, rangeLock,
		)

		// 一条链一对独立任务，单链故障不影响其它链
		safe.GoCtx(ctx, engine.Start)
		safe.GoCtx(ctx, executor.Start)

		// x402：同一条链注册成一个 exact 方案
		scheme := x402.NewEvmScheme(adapter, rdb, chain.ChainName, chain.Estimation)
		for _, token := range adapter.Tokens() {
			if err := scheme.AddAsset(ctx, token); err != nil {
				// 不支持 EIP-3009 的代币只是进不了 x402，正常充值不受影响
				logger.Warn(ctx, "token skipped for x402",
					zap.String("chain", chain.ChainName),
					zap.String("token", token.Symbol),
					zap.Error(err))
			}
		}
		facilitator.Register(scheme)

		logger.Info(ctx, "⛓️ chain started",
			zap.String("chain", chain.ChainName),
			zap.Int64("latency", chain.Latency),
			zap.String("admin", adapter.AdminAddress()))
	}

	// E. HTTP API
	secret := sha256.Sum256([]byte(cfg.Secret))
	server := httpapi.NewServer(repo, repo, repo, customers, m, facilitator, secret[:])
	srv := server.NewHTTPServer(ctx, fmt.Sprintf(":%d", cfg.Port))

	safe.Go(func() {
		logger.Info(ctx, "🚀 Server is running", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "http server error", zap.Error(err))
		}
	})

	// 4. 优雅退出：先停 HTTP，链上任务随 ctx 取消，库是唯一事实来源，
	// 没归集完的充值下次启动会自动恢复
	<-ctx.Done()
	logger.Info(ctx, "Shutdown signal received...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	time.Sleep(time.Second)
	logger.Info(context.Background(), "🛑 zeropay stopped")
}
