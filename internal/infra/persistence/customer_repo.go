package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/xerr"
)

func (r *Repo) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.RecordNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetByEth(ctx context.Context, eth string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.WithContext(ctx).Where("eth = ?", eth).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.RecordNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// GetOrInsertCustomer 先查 (merchant, account)，没有就在一个事务里：
// 插入占坑拿到自增 id -> 用 id 推导地址 -> 回填 eth
// id 是推导索引，必须先落库才能推导
func (r *Repo) GetOrInsertCustomer(ctx context.Context, merchantID int64, account string,
	derive func(id int64) (string, error)) (*domain.Customer, error) {

	var c domain.Customer
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND account = ?", merchantID, account).
		First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c = domain.Customer{
			MerchantID: merchantID,
			Account:    account,
			Eth:        "",
			UpdatedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}

		eth, err := derive(c.ID)
		if err != nil {
			return err
		}
		c.Eth = eth

		return tx.Model(&domain.Customer{}).Where("id = ?", c.ID).
			Update("eth", eth).Error
	})
	if err != nil {
		// 并发下另一个请求可能先插入成功了，兜底再查一次
		var again domain.Customer
		if e := r.db.WithContext(ctx).
			Where("merchant_id = ? AND account = ?", merchantID, account).
			First(&again).Error; e == nil {
			return &again, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("insert customer failed: %v", err))
	}

	return &c, nil
}

// ListAddresses 返回 eth -> customer_id，启动时灌监控集合用
func (r *Repo) ListAddresses(ctx context.Context) (map[string]int64, error) {
	var rows []domain.Customer
	err := r.db.WithContext(ctx).
		Select("id", "eth").
		Where("eth <> ''").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Eth] = row.ID
	}
	return out, nil
}
