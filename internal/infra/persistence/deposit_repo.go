package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/xerr"
)

func (r *Repo) GetDeposit(ctx context.Context, id int64) (*domain.Deposit, error) {
	var d domain.Deposit
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.RecordNotFound)
		}
		return nil, err
	}
	return &d, nil
}

// InsertDeposit 幂等落库
// 依赖 (tx, log_index) 唯一索引，重复观察 DoNothing，返回 (nil, nil)
func (r *Repo) InsertDeposit(ctx context.Context, d *domain.Deposit) (*domain.Deposit, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(d)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// 重组 / RPC 重放的重复日志，静默丢弃
		return nil, nil
	}
	return d, nil
}

func (r *Repo) SettleDeposit(ctx context.Context, id int64, amount int64, tx string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.Deposit{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"settled_amount": amount,
			"settled_tx":     tx,
			"settled_at":     now,
		}).Error
}

// ListUnsettled 重启后恢复归集队列
func (r *Repo) ListUnsettled(ctx context.Context, chain string) ([]*domain.Deposit, error) {
	deposits := make([]*domain.Deposit, 0)
	err := r.db.WithContext(ctx).
		Where("chain = ? AND settled_tx IS NULL", chain).
		Order("id ASC").
		Find(&deposits).Error
	if err != nil {
		return nil, err
	}
	return deposits, nil
}
