package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"zeropay.com/internal/domain"
)

// GetBlock 获取指定链的扫描游标，第一次运行返回 0
func (r *Repo) GetBlock(ctx context.Context, chain string) (int64, error) {
	var c domain.ScanCursor
	err := r.db.WithContext(ctx).Where("chain = ?", chain).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.Block, nil
}

// SetBlock 更新扫描游标 (Upsert)
func (r *Repo) SetBlock(ctx context.Context, chain string, block int64) error {
	c := domain.ScanCursor{
		Chain:     chain,
		Block:     block,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain"}},
			DoUpdates: clause.AssignmentColumns([]string{"block", "updated_at"}),
		}).
		Create(&c).Error
}
