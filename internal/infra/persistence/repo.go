package persistence

import (
	"gorm.io/gorm"
	"zeropay.com/internal/domain"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// 确保 Repo 实现了所有接口
var (
	_ domain.MerchantRepo = (*Repo)(nil)
	_ domain.CustomerRepo = (*Repo)(nil)
	_ domain.SessionRepo  = (*Repo)(nil)
	_ domain.DepositRepo  = (*Repo)(nil)
	_ domain.CursorRepo   = (*Repo)(nil)
)

// AutoMigrate 建表 (线上走独立迁移，开发/测试直接用)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Merchant{},
		&domain.Customer{},
		&domain.Session{},
		&domain.Deposit{},
		&domain.ScanCursor{},
	)
}

// supportsSkipLocked 只有 MySQL/Postgres 方言认识 SKIP LOCKED，
// 测试用的 sqlite 不认识，直接跳过行锁
func supportsSkipLocked(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return true
	default:
		return false
	}
}
