package domain

import (
	"context"
	"time"
)

// Session 支付会话，创建后 24 小时过期
// deposit_id 绑定后视为已支付，sent=true 视为已结算，永不删除
type Session struct {
	ID         int64
	CustomerID int64 `gorm:"index:idx_customer_expired"`
	DepositID  *int64
	Amount     int64 // 单位: 分
	Sent       bool
	UpdatedAt  time.Time
	ExpiredAt  time.Time `gorm:"index:idx_customer_expired"`
}

// SessionTTL 会话有效期
const SessionTTL = 24 * time.Hour

type SessionRepo interface {
	GetSession(ctx context.Context, id int64) (*Session, error)
	InsertSession(ctx context.Context, customerID int64, amount int64) (*Session, error)
	// Match 给充值挑一个会话并绑定 deposit：
	// 最老的一条 sent=false AND deposit IS NULL AND 未过期 AND amount <= 充值金额，
	// 行锁 (SKIP LOCKED)，防止两笔充值抢同一个会话。
	// 没有可用会话时返回 (nil, nil)。
	Match(ctx context.Context, customerID int64, amount int64, depositID int64) (*Session, error)
	// GetByDeposit 按绑定的充值找会话，没有返回 (nil, nil)
	GetByDeposit(ctx context.Context, depositID int64) (*Session, error)
	// MarkSent 结算完成
	MarkSent(ctx context.Context, id int64) error
}
