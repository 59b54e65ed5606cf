package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"zeropay.com/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return New(db)
}

func seedCustomer(t *testing.T, r *Repo, eth string) *domain.Customer {
	t.Helper()
	ctx := context.Background()

	m, err := r.BootstrapDefault(ctx, "k", "0xAAA0000000000000000000000000000000000aaa", "http://hook.test")
	require.NoError(t, err)

	c, err := r.GetOrInsertCustomer(ctx, m.ID, "neo", func(id int64) (string, error) {
		return eth, nil
	})
	require.NoError(t, err)
	return c
}

func TestCustomerGetOrInsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	c := seedCustomer(t, r, "0x1111111111111111111111111111111111111111")
	assert.Equal(t, "neo", c.Account)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", c.Eth)

	// 同 (merchant, account) 再来一次拿到同一个客户，不会重新推导
	again, err := r.GetOrInsertCustomer(ctx, c.MerchantID, "neo", func(id int64) (string, error) {
		t.Fatal("derive 不应该被调用")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, c.Eth, again.Eth)

	// 地址反查
	byEth, err := r.GetByEth(ctx, c.Eth)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byEth.ID)

	addrs, err := r.ListAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{c.Eth: c.ID}, addrs)
}

func TestDepositDedup(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedCustomer(t, r, "0x2222222222222222222222222222222222222222")

	d1, err := r.InsertDeposit(ctx, &domain.Deposit{
		CustomerID: c.ID, Chain: "base", Token: "base:USDT",
		Amount: 1000, Tx: "0xabc", LogIndex: 7,
	})
	require.NoError(t, err)
	require.NotNil(t, d1)

	// 同 (tx, log_index) 重放必须静默吞掉
	d2, err := r.InsertDeposit(ctx, &domain.Deposit{
		CustomerID: c.ID, Chain: "base", Token: "base:USDT",
		Amount: 1000, Tx: "0xabc", LogIndex: 7,
	})
	require.NoError(t, err)
	assert.Nil(t, d2)

	// 同 tx 不同 log_index 是另一笔
	d3, err := r.InsertDeposit(ctx, &domain.Deposit{
		CustomerID: c.ID, Chain: "base", Token: "base:USDT",
		Amount: 500, Tx: "0xabc", LogIndex: 8,
	})
	require.NoError(t, err)
	assert.NotNil(t, d3)

	var count int64
	r.db.Model(&domain.Deposit{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestDepositSettleAndListUnsettled(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedCustomer(t, r, "0x3333333333333333333333333333333333333333")

	d, err := r.InsertDeposit(ctx, &domain.Deposit{
		CustomerID: c.ID, Chain: "base", Token: "base:USDT",
		Amount: 1000, Tx: "0xd1", LogIndex: 0,
	})
	require.NoError(t, err)

	pending, err := r.ListUnsettled(ctx, "base")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Settled())

	require.NoError(t, r.SettleDeposit(ctx, d.ID, 950, "0xsettle"))

	got, err := r.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, got.Settled())
	assert.EqualValues(t, 950, *got.SettledAmount)
	assert.Equal(t, "0xsettle", *got.SettledTx)
	assert.NotNil(t, got.SettledAt)

	pending, err = r.ListUnsettled(ctx, "base")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSessionMatch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedCustomer(t, r, "0x4444444444444444444444444444444444444444")

	s1, err := r.InsertSession(ctx, c.ID, 1000)
	require.NoError(t, err)
	s2, err := r.InsertSession(ctx, c.ID, 1000)
	require.NoError(t, err)

	// 24h 有效期
	assert.WithinDuration(t, time.Now().Add(domain.SessionTTL), s1.ExpiredAt, time.Minute)

	// 金额不够 -> 匹配不上
	got, err := r.Match(ctx, c.ID, 500, 101)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 多个可用时取最老的 (id 最小)
	got, err = r.Match(ctx, c.ID, 1500, 101)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s1.ID, got.ID)

	// 已绑定的不会再被匹配
	got, err = r.Match(ctx, c.ID, 1000, 102)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s2.ID, got.ID)

	got, err = r.Match(ctx, c.ID, 1000, 103)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 会话 <-> 充值反查
	bound, err := r.GetByDeposit(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, bound)
	assert.Equal(t, s1.ID, bound.ID)

	none, err := r.GetByDeposit(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSessionMatchExpired(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedCustomer(t, r, "0x5555555555555555555555555555555555555555")

	s, err := r.InsertSession(ctx, c.ID, 1000)
	require.NoError(t, err)

	// 手动把会话改成已过期
	require.NoError(t, r.db.Model(&domain.Session{}).Where("id = ?", s.ID).
		Update("expired_at", time.Now().UTC().Add(-time.Hour)).Error)

	// 过期的永远匹配不到，也不会复活
	got, err := r.Match(ctx, c.ID, 5000, 201)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionMarkSent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := seedCustomer(t, r, "0x6666666666666666666666666666666666666666")

	s, err := r.InsertSession(ctx, c.ID, 1000)
	require.NoError(t, err)
	require.NoError(t, r.MarkSent(ctx, s.ID))

	got, err := r.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)
}

func TestCursorUpsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	block, err := r.GetBlock(ctx, "base")
	require.NoError(t, err)
	assert.EqualValues(t, 0, block)

	require.NoError(t, r.SetBlock(ctx, "base", 100))
	require.NoError(t, r.SetBlock(ctx, "base", 200))
	require.NoError(t, r.SetBlock(ctx, "polygon", 50))

	block, err = r.GetBlock(ctx, "base")
	require.NoError(t, err)
	assert.EqualValues(t, 200, block)

	block, err = r.GetBlock(ctx, "polygon")
	require.NoError(t, err)
	assert.EqualValues(t, 50, block)
}

func TestMerchantApikey(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	m, err := r.GetOrInsertMerchant(ctx, "0xAbC0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Len(t, m.Apikey, 32)
	assert.Equal(t, m.Account, m.Eth)

	byKey, err := r.GetByApikey(ctx, m.Apikey)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byKey.ID)

	_, err = r.GetByApikey(ctx, "wrong")
	assert.Error(t, err)

	require.NoError(t, r.UpdateApikey(ctx, m.ID, "newkey"))
	_, err = r.GetByApikey(ctx, m.Apikey)
	assert.Error(t, err)
	byKey, err = r.GetByApikey(ctx, "newkey")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byKey.ID)
}
