package domain

import (
	"context"
	"math/big"
)

// TokenTransfer 标准化后的一条 ERC-20 Transfer 日志
// Amount 已经换算成分，换算后为 0 的在适配层就丢掉了
type TokenTransfer struct {
	Chain    string
	Symbol   string
	Token    string // 合约地址
	To       string // 收款地址 (EIP-55)
	Amount   int64  // 单位: 分
	Units    *big.Int
	Tx       string
	LogIndex uint
	Block    uint64
}

// ChainAdapter 屏蔽底层链访问，扫描引擎只认这两个方法
type ChainAdapter interface {
	// BlockNumber 当前链头高度
	BlockNumber(ctx context.Context) (uint64, error)
	// FilterTransfers 拉取区间内所有已配置代币的 Transfer 日志
	// 按 (block, log_index) 升序返回
	FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]TokenTransfer, error)
}

// TransferHandler 扫描引擎把一批转账交给业务层（matcher）
// 返回 nil 后引擎才会推进游标
type TransferHandler interface {
	HandleTransfers(ctx context.Context, chain string, transfers []TokenTransfer) error
}
