package domain

import (
	"context"
	"time"
)

// Customer 商户下的客户，首次创建会话时懒创建
// eth 地址从助记词按客户 id 推导，终生不变
type Customer struct {
	ID         int64
	MerchantID int64  `gorm:"uniqueIndex:idx_merchant_account"`
	Account    string `gorm:"uniqueIndex:idx_merchant_account;size:64"` // 商户侧的客户标识
	Eth        string `gorm:"uniqueIndex;size:42"`
	UpdatedAt  time.Time
}

type CustomerRepo interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetByEth(ctx context.Context, eth string) (*Customer, error)
	// GetOrInsertCustomer 按 (merchant, account) 取客户；不存在则插入拿到 id，
	// 再用 derive 推导地址回填（同一个事务内）
	GetOrInsertCustomer(ctx context.Context, merchantID int64, account string,
		derive func(id int64) (string, error)) (*Customer, error)
	// ListAddresses 启动时把已有地址灌进监控集合
	ListAddresses(ctx context.Context) (map[string]int64, error)
}
