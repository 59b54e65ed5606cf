package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
	"zeropay.com/pkg/xredis"
)

// 先定义数据结构
type Config struct {
	Chain      string        // 链名，如 "base"
	Interval   time.Duration // 正常轮询间隔
	Latency    int64         // 确认区块数，安全头 = 链头 - Latency
	StepBlocks uint64        // 每次最多扫多少个区块，压住 RPC 负载
}

// Engine 单链扫描引擎
// 只扫 安全头 以内的块，吐出来的转账视为终局；游标落库后才算扫过
type Engine struct {
	cfg     *Config
	adapter domain.ChainAdapter
	handler domain.TransferHandler
	cursor  domain.CursorRepo
	lock    *xredis.RangeLock

	lastScanned int64
}

func New(cfg *Config, adapter domain.ChainAdapter, handler domain.TransferHandler,
	cursor domain.CursorRepo, lock *xredis.RangeLock) *Engine {
	// 对默认的配置进行兜底
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.StepBlocks == 0 || cfg.StepBlocks > 1000 {
		cfg.StepBlocks = 1000
	}

	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		handler: handler,
		cursor:  cursor,
		lock:    lock,
	}
}

// Start 扫描主循环，阻塞到 ctx 结束
// 节奏自适应：追块时 1s 一轮，正常按配置间隔，没新块放慢，出错指数退避
func (e *Engine) Start(ctx context.Context) {
	if err := e.initCursor(ctx); err != nil {
		logger.Error(ctx, "scanner init cursor failed",
			zap.String("chain", e.cfg.Chain), zap.Error(err))
		return
	}

	logger.Info(ctx, "🔭 scanner started",
		zap.String("chain", e.cfg.Chain),
		zap.Int64("from_block", e.lastScanned),
		zap.Int64("latency", e.cfg.Latency))

	errStreak := 0
	for {
		scanned, err := e.scanOnce(ctx)

		var wait time.Duration
		switch {
		case err != nil:
			errStreak++
			// 指数退避，封顶 5 分钟；单链坏掉不影响别的链
			wait = e.cfg.Interval * time.Duration(1<<min(errStreak, 6))
			if wait > 5*time.Minute {
				wait = 5 * time.Minute
			}
			logger.Error(ctx, "scan iteration failed",
				zap.String("chain", e.cfg.Chain),
				zap.Int("err_streak", errStreak),
				zap.Duration("backoff", wait),
				zap.Error(err))
		case scanned >= e.cfg.StepBlocks:
			// 还在追块，加速
			errStreak = 0
			wait = time.Second
		case scanned > 0:
			errStreak = 0
			wait = e.cfg.Interval
		default:
			// 没有新块
			errStreak = 0
			wait = e.cfg.Interval + e.cfg.Interval/2
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "🛑 scanner stopped", zap.String("chain", e.cfg.Chain))
			return
		case <-time.After(wait):
		}
	}
}

// initCursor 取上次进度；第一次启动从当前安全头开始，不回扫历史
func (e *Engine) initCursor(ctx context.Context) error {
	block, err := e.cursor.GetBlock(ctx, e.cfg.Chain)
	if err != nil {
		return err
	}
	if block > 0 {
		e.lastScanned = block
		return nil
	}

	head, err := e.adapter.BlockNumber(ctx)
	if err != nil {
		return err
	}
	e.lastScanned = int64(head) - e.cfg.Latency
	if e.lastScanned < 0 {
		e.lastScanned = 0
	}
	return e.cursor.SetBlock(ctx, e.cfg.Chain, e.lastScanned)
}

// scanOnce 扫一个批次，返回扫过的块数
// 任何一步失败都不推进游标，下一轮从同一个位置重来
func (e *Engine) scanOnce(ctx context.Context) (uint64, error) {
	head, err := e.adapter.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	// 压着链头留出确认深度，重组就追不上我们了
	safeHead := int64(head) - e.cfg.Latency
	if safeHead <= e.lastScanned {
		return 0, nil
	}

	from := uint64(e.lastScanned + 1)
	to := from + e.cfg.StepBlocks - 1
	if to > uint64(safeHead) {
		to = uint64(safeHead)
	}

	// 多副本时一个区间只让一个节点扫
	lockKey := fmt.Sprintf("scanner:lock:%s:%d", e.cfg.Chain, from)
	if e.lock != nil && !e.lock.TryAcquire(ctx, lockKey, 5*time.Minute) {
		// 别的副本在扫，等它把游标推过去
		if block, err := e.cursor.GetBlock(ctx, e.cfg.Chain); err == nil && block > e.lastScanned {
			e.lastScanned = block
		}
		return 0, nil
	}

	transfers, err := e.adapter.FilterTransfers(ctx, from, to)
	if err != nil {
		e.release(ctx, lockKey)
		return 0, err
	}

	// matcher 落库成功才允许推进游标
	if err := e.handler.HandleTransfers(ctx, e.cfg.Chain, transfers); err != nil {
		e.release(ctx, lockKey)
		return 0, err
	}

	if err := e.cursor.SetBlock(ctx, e.cfg.Chain, int64(to)); err != nil {
		e.release(ctx, lockKey)
		return 0, err
	}
	e.lastScanned = int64(to)

	scanned := to - from + 1
	metrics.BlocksScanned.WithLabelValues(e.cfg.Chain).Add(float64(scanned))
	if len(transfers) > 0 {
		logger.Info(ctx, "batch scanned",
			zap.String("chain", e.cfg.Chain),
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("transfers", len(transfers)))
	}

	return scanned, nil
}

func (e *Engine) release(ctx context.Context, key string) {
	if e.lock != nil {
		e.lock.Release(ctx, key)
	}
}
