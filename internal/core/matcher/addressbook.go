package matcher

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/logger"
)

// 地址在 Redis 里的 key 前缀，多副本共享一份监控集合
const addrKeyPrefix = "customer_addr:"

// Redis 里地址缓存 30 天，查库兜底会续上
const addrTTL = 30 * 24 * time.Hour

// AddressBook 客户充值地址集合
// 扫块时每条日志都要查一次，所以内存一份 O(1)，Redis 一份给副本，数据库兜底
type AddressBook struct {
	mu        sync.RWMutex
	addrs     map[string]int64 // eth -> customer_id
	rdb       *redis.Client
	customers domain.CustomerRepo
}

func NewAddressBook(rdb *redis.Client, customers domain.CustomerRepo) *AddressBook {
	return &AddressBook{
		addrs:     make(map[string]int64, 1024),
		rdb:       rdb,
		customers: customers,
	}
}

// Load 启动时把库里所有地址灌进来
func (b *AddressBook) Load(ctx context.Context) error {
	all, err := b.customers.ListAddresses(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	for eth, id := range all {
		b.addrs[eth] = id
	}
	b.mu.Unlock()

	// 顺手镜像到 Redis，失败不致命
	for eth, id := range all {
		if err := b.mirror(ctx, eth, id); err != nil {
			logger.Warn(ctx, "address mirror to redis failed",
				zap.String("eth", eth), zap.Error(err))
		}
	}

	logger.Info(ctx, "✅ address book loaded", zap.Int("count", len(all)))
	return nil
}

// Add 新客户地址进监控集合
func (b *AddressBook) Add(ctx context.Context, eth string, customerID int64) {
	b.mu.Lock()
	b.addrs[eth] = customerID
	b.mu.Unlock()

	if err := b.mirror(ctx, eth, customerID); err != nil {
		logger.Warn(ctx, "address mirror to redis failed",
			zap.String("eth", eth), zap.Error(err))
	}
}

// Lookup 地址是不是客户充值地址
// 内存 -> Redis (别的副本建的) -> 数据库，后两级命中会回填
func (b *AddressBook) Lookup(ctx context.Context, eth string) (int64, bool) {
	b.mu.RLock()
	id, ok := b.addrs[eth]
	b.mu.RUnlock()
	if ok {
		return id, true
	}

	if b.rdb == nil {
		return b.lookupDB(ctx, eth)
	}

	if val, err := b.rdb.Get(ctx, addrKeyPrefix+eth).Result(); err == nil {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil && id > 0 {
			b.mu.Lock()
			b.addrs[eth] = id
			b.mu.Unlock()
			return id, true
		}
	}

	return b.lookupDB(ctx, eth)
}

func (b *AddressBook) lookupDB(ctx context.Context, eth string) (int64, bool) {
	c, err := b.customers.GetByEth(ctx, eth)
	if err != nil || c == nil {
		return 0, false
	}
	b.Add(ctx, eth, c.ID)
	return c.ID, true
}

func (b *AddressBook) mirror(ctx context.Context, eth string, id int64) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Set(ctx, addrKeyPrefix+eth, fmt.Sprintf("%d", id), addrTTL).Err()
}
