package domain

import (
	"context"
	"time"
)

// Merchant 商户实体
// apikey 同时是 HTTP 鉴权凭证和 webhook 的 HMAC 密钥
type Merchant struct {
	ID        int64
	Account   string `gorm:"uniqueIndex;size:64"` // 登录钱包地址
	Name      string `gorm:"uniqueIndex;size:64"`
	Apikey    string `gorm:"uniqueIndex;size:64"`
	Webhook   string `gorm:"size:255"`
	Eth       string `gorm:"size:42"` // 结算收款地址
	UpdatedAt time.Time
}

type MerchantRepo interface {
	GetMerchant(ctx context.Context, id int64) (*Merchant, error)
	GetByApikey(ctx context.Context, apikey string) (*Merchant, error)
	// GetOrInsertMerchant 按登录地址取商户，不存在则创建（默认收款地址 = 登录地址）
	GetOrInsertMerchant(ctx context.Context, account string) (*Merchant, error)
	UpdateApikey(ctx context.Context, id int64, apikey string) error
	// UpdateInfo 更新名称/回调/收款地址，名称重复返回错误
	UpdateInfo(ctx context.Context, id int64, name, webhook, eth string) error
}
