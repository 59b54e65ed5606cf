package persistence

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/xerr"
)

func (r *Repo) GetMerchant(ctx context.Context, id int64) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.RecordNotFound)
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetByApikey(ctx context.Context, apikey string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.db.WithContext(ctx).Where("apikey = ?", apikey).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.NewErrCode(xerr.UserAuthError)
		}
		return nil, err
	}
	return &m, nil
}

// GetOrInsertMerchant 按钱包地址取商户，第一次登录自动注册
func (r *Repo) GetOrInsertMerchant(ctx context.Context, account string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.db.WithContext(ctx).Where("account = ?", account).First(&m).Error
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	m = domain.Merchant{
		Account:   account,
		Name:      fmt.Sprintf("M:%s", account),
		Apikey:    GenerateApikey(),
		Webhook:   "",
		Eth:       account, // 默认收款地址就是登录地址
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("insert merchant failed: %v", err))
	}
	return &m, nil
}

func (r *Repo) UpdateApikey(ctx context.Context, id int64, apikey string) error {
	return r.db.WithContext(ctx).Model(&domain.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{"apikey": apikey, "updated_at": time.Now().UTC()}).Error
}

func (r *Repo) UpdateInfo(ctx context.Context, id int64, name, webhook, eth string) error {
	// 名称要全局唯一
	var exists domain.Merchant
	err := r.db.WithContext(ctx).Where("name = ? AND id <> ?", name, id).First(&exists).Error
	if err == nil {
		return xerr.New(xerr.RequestParamsError, "name already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return r.db.WithContext(ctx).Model(&domain.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":       name,
			"webhook":    webhook,
			"eth":        eth,
			"updated_at": time.Now().UTC(),
		}).Error
}

// BootstrapDefault 单租户模式：用环境变量里的 APIKEY/WALLET/WEBHOOK 固化一个默认商户
// 多次启动幂等
func (r *Repo) BootstrapDefault(ctx context.Context, apikey, wallet, webhook string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.db.WithContext(ctx).Where("apikey = ?", apikey).First(&m).Error
	if err == nil {
		// 已经有了，刷新钱包和回调
		e := r.db.WithContext(ctx).Model(&domain.Merchant{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{"eth": wallet, "webhook": webhook, "updated_at": time.Now().UTC()}).Error
		if e != nil {
			return nil, e
		}
		m.Eth, m.Webhook = wallet, webhook
		return &m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	m = domain.Merchant{
		Account:   wallet,
		Name:      "default",
		Apikey:    apikey,
		Webhook:   webhook,
		Eth:       wallet,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GenerateApikey 16 字节随机数的 hex
func GenerateApikey() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
