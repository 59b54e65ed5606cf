package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RangeLock 扫块区间的分布式锁，多副本部署时防止重复扫描
type RangeLock struct {
	rdb *redis.Client
	id  string // 当前节点的唯一ID
}

func NewRangeLock(rdb *redis.Client) *RangeLock {
	id := fmt.Sprintf("%s%d", uuid.New().String(), time.Now().Nanosecond())
	return &RangeLock{rdb: rdb, id: id}
}

// TryAcquire 抢锁，抢到返回 true
// 设置过期时间，防止节点挂掉后死锁
func (r *RangeLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	success, err := r.rdb.SetNX(ctx, key, r.id, ttl).Result()
	if err != nil {
		return false
	}

	if !success {
		// 如果抢锁失败，检查锁是不是自己的（用于续期）
		val, _ := r.rdb.Get(ctx, key).Result()
		if val == r.id {
			r.rdb.Expire(ctx, key, ttl)
			return true
		}
	}

	return success
}

// Release 主动释放（只释放自己的锁）
func (r *RangeLock) Release(ctx context.Context, key string) {
	val, _ := r.rdb.Get(ctx, key).Result()
	if val == r.id {
		r.rdb.Del(ctx, key)
	}
}
