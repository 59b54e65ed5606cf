package ratelimit

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Rule 熔断规则
type Rule struct {
	// Half-Open 状态允许通过的探测请求数（为 0 时 NewManager 取默认值 3）
	MaxRequests uint32

	// Closed 状态计数窗口
	Interval time.Duration

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration

	// 连续失败阈值（建议 5~20，RPC 场景）
	TripConsecutiveFailures uint32
}

// Manager 按资源名管理熔断器，主要包在链 RPC 外面
// 单条链节点坏掉时快速失败，不拖垮其它链的扫描
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
}

func NewManager(defaultRule Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 3
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 30 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = time.Minute
	}
	if defaultRule.TripConsecutiveFailures == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}

	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 8),
		defaultRule: defaultRule,
	}
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	// 快路径：读锁
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	// 慢路径：创建
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule := m.defaultRule
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Interval:    rule.Interval,
		Timeout:     rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= rule.TripConsecutiveFailures
		},
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[name] = cb
	return cb
}

// Do 在熔断器内执行一次调用
func (m *Manager) Do(name string, fn func() error) error {
	cb := m.Get(name)
	_, err := cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
