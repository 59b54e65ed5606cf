package domain

import (
	"context"
	"time"
)

// Deposit 链上确认后的一笔入账
// (tx, log_index) 全局唯一，重放 / 重组导致的重复观察靠它去重
type Deposit struct {
	ID         int64
	CustomerID int64  `gorm:"index"`
	Chain      string `gorm:"size:32;index"`
	Token      string `gorm:"size:64"` // 标识 "chain:SYMBOL"，如 "base:USDC"
	Amount     int64  // 单位: 分
	Tx         string `gorm:"uniqueIndex:idx_tx_log;size:66"`
	LogIndex   uint   `gorm:"uniqueIndex:idx_tx_log"`
	CreatedAt  time.Time

	// 结算字段，归集交易终局后一次性回填
	SettledAmount *int64
	SettledTx     *string `gorm:"size:66"`
	SettledAt     *time.Time
}

// Settled 是否已结算
func (d *Deposit) Settled() bool {
	return d.SettledTx != nil
}

type DepositRepo interface {
	GetDeposit(ctx context.Context, id int64) (*Deposit, error)
	// InsertDeposit 落库，(tx, log_index) 冲突时返回 (nil, nil) 表示重复观察
	InsertDeposit(ctx context.Context, d *Deposit) (*Deposit, error)
	SettleDeposit(ctx context.Context, id int64, amount int64, tx string) error
	// ListUnsettled 重启后恢复未完成的归集
	ListUnsettled(ctx context.Context, chain string) ([]*Deposit, error)
}
