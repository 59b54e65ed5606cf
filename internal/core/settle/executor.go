package settle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"zeropay.com/internal/core/matcher"
	"zeropay.com/internal/domain"
	"zeropay.com/internal/infra/ethereum"
	"zeropay.com/pkg/hdwallet"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
	"zeropay.com/pkg/safe"
)

// 归集重试退避：10s 起步翻倍，封顶 10 分钟；除了管理账户没钱、充值地址余额不足（交给人工对账）以外一直重试
const (
	retryBase = 10 * time.Second
	retryCap  = 10 * time.Minute
)

type Config struct {
	Chain       string
	Commission  CommissionCfg
	Concurrency int // 同链并行归集的上限
	QueueSize   int
}

// Executor 一条链的归集执行器
// 同一个充值地址串行 (FIFO，避免 nonce 撞车)，不同地址并行
type Executor struct {
	cfg     *Config
	adapter *ethereum.Adapter
	wallet  *hdwallet.HDWallet

	deposits  domain.DepositRepo
	customers domain.CustomerRepo
	merchants domain.MerchantRepo
	matcher   *matcher.Matcher

	queue chan *domain.Deposit
	sem   chan struct{}

	lockMu    sync.Mutex
	addrLocks map[string]*sync.Mutex // 充值地址 -> 串行锁
}

func New(cfg *Config, adapter *ethereum.Adapter, wallet *hdwallet.HDWallet,
	deposits domain.DepositRepo, customers domain.CustomerRepo,
	merchants domain.MerchantRepo, m *matcher.Matcher) *Executor {

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	return &Executor{
		cfg:       cfg,
		adapter:   adapter,
		wallet:    wallet,
		deposits:  deposits,
		customers: customers,
		merchants: merchants,
		matcher:   m,
		queue:     make(chan *domain.Deposit, cfg.QueueSize),
		sem:       make(chan struct{}, cfg.Concurrency),
		addrLocks: make(map[string]*sync.Mutex),
	}
}

// Submit 投一笔待归集的充值，队列满了就地阻塞（背压传导给扫描引擎）
func (e *Executor) Submit(d *domain.Deposit) {
	e.queue <- d
}

// Start 恢复未完成的归集，然后进入消费循环
func (e *Executor) Start(ctx context.Context) {
	logger.Info(ctx, "🚀 settlement executor started",
		zap.String("chain", e.cfg.Chain),
		zap.Int("concurrency", e.cfg.Concurrency))

	// 重启恢复：库里 settled_tx IS NULL 的都要重新归集
	pending, err := e.deposits.ListUnsettled(ctx, e.cfg.Chain)
	if err != nil {
		logger.Error(ctx, "list unsettled deposits failed",
			zap.String("chain", e.cfg.Chain), zap.Error(err))
	} else if len(pending) > 0 {
		logger.Info(ctx, "resuming unsettled deposits",
			zap.String("chain", e.cfg.Chain), zap.Int("count", len(pending)))
		safe.Go(func() {
			for _, d := range pending {
				select {
				case <-ctx.Done():
					return
				case e.queue <- d:
				}
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "🛑 settlement executor stopping", zap.String("chain", e.cfg.Chain))
			return
		case d := <-e.queue:
			select {
			case <-ctx.Done():
				return
			case e.sem <- struct{}{}:
			}
			safe.GoCtx(ctx, func(ctx context.Context) {
				defer func() { <-e.sem }()
				e.settle(ctx, d)
			})
		}
	}
}

// settle 处理单笔充值，带无限重试
func (e *Executor) settle(ctx context.Context, d *domain.Deposit) {
	started := time.Now()

	customer, err := e.customers.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		logger.Error(ctx, "settle: load customer failed", zap.Int64("deposit", d.ID), zap.Error(err))
		return
	}

	// 同地址 FIFO
	lock := e.addrLock(customer.Eth)
	lock.Lock()
	defer lock.Unlock()

	// 拿锁期间可能已被并发结算（重启恢复和实时路径重叠时）
	if cur, err := e.deposits.GetDeposit(ctx, d.ID); err == nil && cur.Settled() {
		return
	}

	fee := Commission(d.Amount, e.cfg.Commission)
	settled := d.Amount - fee

	if settled <= 0 {
		// 佣金吃掉了整笔，跳过链上转账，保留事件对称性发一个 0 金额的 settled
		logger.Warn(ctx, "commission exceeds deposit, zero settle",
			zap.Int64("deposit", d.ID),
			zap.Int64("amount", d.Amount),
			zap.Int64("fee", fee))
		if err := e.matcher.OnSettled(ctx, d, 0, ""); err != nil {
			logger.Error(ctx, "zero settle persist failed", zap.Int64("deposit", d.ID), zap.Error(err))
		}
		metrics.DepositsSettled.WithLabelValues(e.cfg.Chain, "zero").Inc()
		return
	}

	merchant, err := e.merchants.GetMerchant(ctx, customer.MerchantID)
	if err != nil {
		logger.Error(ctx, "settle: load merchant failed", zap.Int64("deposit", d.ID), zap.Error(err))
		return
	}

	req, err := e.buildRequest(d, customer, merchant, settled, fee)
	if err != nil {
		logger.Error(ctx, "settle: build request failed", zap.Int64("deposit", d.ID), zap.Error(err))
		return
	}

	backoff := retryBase
	for attempt := 1; ; attempt++ {
		txHash, err := e.adapter.Forward(ctx, req)
		if err == nil {
			if err := e.matcher.OnSettled(ctx, d, settled, txHash); err != nil {
				logger.Error(ctx, "settle persist failed", zap.Int64("deposit", d.ID), zap.Error(err))
				return
			}
			logger.Info(ctx, "✅ deposit settled",
				zap.String("chain", e.cfg.Chain),
				zap.Int64("deposit", d.ID),
				zap.Int64("settled", settled),
				zap.Int64("fee", fee),
				zap.String("tx", txHash))
			metrics.DepositsSettled.WithLabelValues(e.cfg.Chain, "ok").Inc()
			metrics.SettleDuration.WithLabelValues(e.cfg.Chain).Observe(time.Since(started).Seconds())
			return
		}

		if errors.Is(err, ethereum.ErrNoBalance) {
			// 地址上没钱了：要么充值还没终局（不该发生，我们只扫安全头以内），
			// 要么上次归集已经上链但本地状态没写成。不能盲目重试，交给人工对账
			logger.Error(ctx, "🔥 deposit address drained, manual reconciliation needed",
				zap.String("chain", e.cfg.Chain),
				zap.Int64("deposit", d.ID),
				zap.Error(err))
			metrics.DepositsSettled.WithLabelValues(e.cfg.Chain, "failed").Inc()
			return
		}
		if errors.Is(err, ethereum.ErrAdminUnderfunded) {
			// 重试没有意义，报警等人工补钱；充值停在"已观察未结算"
			logger.Error(ctx, "🔥 ADMIN WALLET UNDERFUNDED, settlement halted",
				zap.String("chain", e.cfg.Chain),
				zap.Int64("deposit", d.ID),
				zap.Error(err))
			metrics.DepositsSettled.WithLabelValues(e.cfg.Chain, "failed").Inc()
			return
		}
		if ctx.Err() != nil {
			return
		}

		logger.Warn(ctx, "settle attempt failed, will retry",
			zap.String("chain", e.cfg.Chain),
			zap.Int64("deposit", d.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > retryCap {
			backoff = retryCap
		}
	}
}

func (e *Executor) buildRequest(d *domain.Deposit, customer *domain.Customer,
	merchant *domain.Merchant, settled, fee int64) (*ethereum.ForwardRequest, error) {

	// token 标识是 "chain:SYMBOL"
	_, symbol, _ := strings.Cut(d.Token, ":")
	token, ok := e.adapter.TokenBySymbol(symbol)
	if !ok {
		return nil, errors.New("token not configured: " + d.Token)
	}

	addr, key, err := e.wallet.DeriveAddress(uint32(customer.ID))
	if err != nil {
		return nil, err
	}
	// 推导出来的必须就是当初分配的地址，不一致说明助记词被换过
	if addr != customer.Eth {
		return nil, errors.New("derived address mismatch for customer " + customer.Eth)
	}

	return &ethereum.ForwardRequest{
		DepositKey:  key,
		Token:       token,
		Merchant:    common.HexToAddress(merchant.Eth),
		SettleUnits: ethereum.CentsToUnits(settled, token.Decimals),
		FeeUnits:    ethereum.CentsToUnits(fee, token.Decimals),
	}, nil
}

func (e *Executor) addrLock(addr string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.addrLocks[addr]
	if !ok {
		l = &sync.Mutex{}
		e.addrLocks[addr] = l
	}
	return l
}
