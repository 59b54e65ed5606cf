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

func (r *Repo) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	var s domain.Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.RecordNotFound)
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertSession(ctx context.Context, customerID int64, amount int64) (*domain.Session, error) {
	now := time.Now().UTC()
	s := domain.Session{
		CustomerID: customerID,
		Amount:     amount,
		Sent:       false,
		UpdatedAt:  now,
		ExpiredAt:  now.Add(domain.SessionTTL),
	}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Match 挑最老的一条可用会话并绑定充值
// 过期只在这里判断：晚到的充值永远匹配不到过期会话，会话也不会复活
func (r *Repo) Match(ctx context.Context, customerID int64, amount int64, depositID int64) (*domain.Session, error) {
	var matched *domain.Session

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where(
			"customer_id = ? AND sent = ? AND deposit_id IS NULL AND expired_at > ? AND amount <= ?",
			customerID, false, time.Now().UTC(), amount,
		).Order("id ASC")

		// 多副本部署靠行锁防止两笔充值绑到同一个会话
		if supportsSkipLocked(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var s domain.Session
		if err := q.First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // 没有可用会话，按 unknow 处理
			}
			return err
		}

		// 条件更新兜底（sqlite 没有行锁）
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND deposit_id IS NULL", s.ID).
			Updates(map[string]any{
				"deposit_id": depositID,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // 被并发抢走了
		}

		s.DepositID = &depositID
		matched = &s
		return nil
	})

	return matched, err
}

// GetByDeposit 按绑定的充值找会话
func (r *Repo) GetByDeposit(ctx context.Context, depositID int64) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("deposit_id = ?", depositID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent": true, "updated_at": time.Now().UTC()}).Error
}
