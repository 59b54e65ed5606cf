package domain

import (
	"context"
	"time"
)

// ScanCursor 每条链的扫描进度
type ScanCursor struct {
	ID        int64
	Chain     string `gorm:"uniqueIndex;size:32"`
	Block     int64
	UpdatedAt time.Time
}

type CursorRepo interface {
	// GetBlock 没有记录时返回 0
	GetBlock(ctx context.Context, chain string) (int64, error)
	SetBlock(ctx context.Context, chain string, block int64) error
}
