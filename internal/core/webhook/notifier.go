package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
	"zeropay.com/pkg/safe"
)

// Redis 队列结构：pending list + inflight list + retry zset
// 崩溃不丢事件：投递前 BLMove 到 inflight，成功 / 排了重试才从 inflight 删掉
const (
	keyPending  = "webhook:pending"
	keyInflight = "webhook:inflight"
	keyRetry    = "webhook:retry" // score = 下次投递的 unix 秒
)

// 退避 1s,2s,4s... 封顶 1h；超过 24h 丢弃并报给运营
const (
	maxBackoff = time.Hour
	maxAge     = 24 * time.Hour
)

// Job 一条待投递的回调
type Job struct {
	ID         string   `json:"id"`
	MerchantID int64    `json:"merchant_id"`
	Event      string   `json:"event"`
	Params     []any    `json:"params"`
	Attempt    int      `json:"attempt"`
	CreatedAt  int64    `json:"created_at"` // unix 秒
}

type Notifier struct {
	rdb       *redis.Client
	merchants domain.MerchantRepo
	client    *http.Client
	workers   int
}

func NewNotifier(rdb *redis.Client, merchants domain.MerchantRepo, workers int) *Notifier {
	if workers <= 0 {
		workers = 2
	}
	return &Notifier{
		rdb:       rdb,
		merchants: merchants,
		client:    &http.Client{Timeout: 15 * time.Second},
		workers:   workers,
	}
}

// Enqueue 入队。失败只能记日志，绝不能把错误传染给充值/结算状态
func (n *Notifier) Enqueue(ctx context.Context, merchantID int64, ev domain.Event) {
	job := Job{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Event:      ev.Event,
		Params:     ev.Params,
		CreatedAt:  time.Now().Unix(),
	}
	raw, _ := json.Marshal(job)
	if err := n.rdb.LPush(ctx, keyPending, raw).Err(); err != nil {
		logger.Error(ctx, "🔥 webhook enqueue failed, event lost",
			zap.String("event", ev.Event),
			zap.Int64("merchant", merchantID),
			zap.Error(err))
		metrics.WebhookDeliveries.WithLabelValues(ev.Event, "dropped").Inc()
	}
}

// Start 启动投递 worker
func (n *Notifier) Start(ctx context.Context) {
	// 上次崩溃留在 inflight 的任务先捞回来
	n.recoverInflight(ctx)

	for i := 0; i < n.workers; i++ {
		safe.GoCtx(ctx, n.worker)
	}
	safe.GoCtx(ctx, n.retryMover)

	logger.Info(ctx, "webhook notifier started", zap.Int("workers", n.workers))
}

func (n *Notifier) recoverInflight(ctx context.Context) {
	for {
		val, err := n.rdb.RPopLPush(ctx, keyInflight, keyPending).Result()
		if err != nil || val == "" {
			return
		}
	}
}

func (n *Notifier) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := n.rdb.BLMove(ctx, keyPending, keyInflight, "RIGHT", "LEFT", 2*time.Second).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "webhook queue read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		n.handle(ctx, raw)
		// 无论成功还是进了重试队列，inflight 里这份都可以删了
		n.rdb.LRem(ctx, keyInflight, 1, raw)
	}
}

func (n *Notifier) handle(ctx context.Context, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		logger.Error(ctx, "bad webhook job, dropped", zap.String("raw", raw), zap.Error(err))
		return
	}

	err := n.deliver(ctx, &job)
	if err == nil {
		metrics.WebhookDeliveries.WithLabelValues(job.Event, "ok").Inc()
		return
	}

	// 超龄丢弃
	age := time.Since(time.Unix(job.CreatedAt, 0))
	if age > maxAge {
		logger.Error(ctx, "🔥 webhook dropped after 24h of retries",
			zap.String("event", job.Event),
			zap.Int64("merchant", job.MerchantID),
			zap.Int("attempts", job.Attempt),
			zap.Error(err))
		metrics.WebhookDeliveries.WithLabelValues(job.Event, "dropped").Inc()
		return
	}

	// 指数退避排重试
	job.Attempt++
	backoff := time.Second << min(job.Attempt-1, 20)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	nextAt := time.Now().Add(backoff).Unix()

	rawNext, _ := json.Marshal(job)
	if e := n.rdb.ZAdd(ctx, keyRetry, redis.Z{Score: float64(nextAt), Member: rawNext}).Err(); e != nil {
		logger.Error(ctx, "webhook retry enqueue failed", zap.Error(e))
	}
	metrics.WebhookDeliveries.WithLabelValues(job.Event, "retry").Inc()

	logger.Warn(ctx, "webhook delivery failed, will retry",
		zap.String("event", job.Event),
		zap.Int("attempt", job.Attempt),
		zap.Duration("backoff", backoff),
		zap.Error(err))
}

// deliver 投一次
func (n *Notifier) deliver(ctx context.Context, job *Job) error {
	merchant, err := n.merchants.GetMerchant(ctx, job.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant: %w", err)
	}
	if merchant.Webhook == "" {
		// 商户没配回调，静默吞掉
		return nil
	}

	body, err := json.Marshal(domain.Event{Event: job.Event, Params: job.Params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, merchant.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// 签名必须盖在发出去的原始字节上
	req.Header.Set("X-HMAC", Sign(merchant.Apikey, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// retryMover 把到点的重试任务搬回 pending
func (n *Notifier) retryMover(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := fmt.Sprintf("%d", time.Now().Unix())
			jobs, err := n.rdb.ZRangeByScore(ctx, keyRetry, &redis.ZRangeBy{
				Min: "0", Max: now, Count: 100,
			}).Result()
			if err != nil || len(jobs) == 0 {
				continue
			}
			for _, raw := range jobs {
				// 先删后推，删失败说明别的副本已经搬走了
				removed, err := n.rdb.ZRem(ctx, keyRetry, raw).Result()
				if err != nil || removed == 0 {
					continue
				}
				n.rdb.LPush(ctx, keyPending, raw)
			}
		}
	}
}
