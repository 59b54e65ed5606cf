package matcher

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
	"zeropay.com/internal/infra/persistence"
	"zeropay.com/pkg/logger"
)

func init() {
	// 初始化 logger，避免测试时 panic
	logger.Init("matcher-test", "error")
}

// fakeNotifier 收集发出去的事件
type fakeNotifier struct {
	events []domain.Event
}

func (f *fakeNotifier) Enqueue(_ context.Context, _ int64, ev domain.Event) {
	f.events = append(f.events, ev)
}

// fakeSettler 收集投给执行器的充值
type fakeSettler struct {
	submitted []*domain.Deposit
}

func (f *fakeSettler) Submit(d *domain.Deposit) { f.submitted = append(f.submitted, d) }

type fixture struct {
	db       *gorm.DB
	repo     *persistence.Repo
	matcher  *Matcher
	notifier *fakeNotifier
	settler  *fakeSettler
	merchant *domain.Merchant
	customer *domain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(db))

	repo := persistence.New(db)
	ctx := context.Background()

	merchant, err := repo.BootstrapDefault(ctx, "k", "0xAAA0000000000000000000000000000000000aaa", "http://hook.test")
	require.NoError(t, err)

	customer, err := repo.GetOrInsertCustomer(ctx, merchant.ID, "neo", func(id int64) (string, error) {
		return "0x1111111111111111111111111111111111111111", nil
	})
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	settler := &fakeSettler{}
	book := NewAddressBook(nil, repo)
	require.NoError(t, book.Load(ctx))

	m := New(repo, repo, repo, repo, book, notifier)
	m.RegisterSettler("base", settler)

	return &fixture{db: db, repo: repo, matcher: m, notifier: notifier, settler: settler,
		merchant: merchant, customer: customer}
}

func transfer(to string, amount int64, tx string, logIndex uint) domain.TokenTransfer {
	return domain.TokenTransfer{
		Chain: "base", Symbol: "USDT",
		Token: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		To:    to, Amount: amount, Tx: tx, LogIndex: logIndex, Block: 100,
	}
}

// 快乐路径: 充值匹配会话 -> session.paid，结算后 -> session.settled
func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	err = f.matcher.HandleTransfers(ctx, "base",
		[]domain.TokenTransfer{transfer(f.customer.Eth, 1000, "0xt1", 0)})
	require.NoError(t, err)

	// paid 事件
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, domain.Event{
		Event:  "session.paid",
		Params: []any{session.ID, "neo", int64(1000)},
	}, f.notifier.events[0])

	// 会话已绑定
	got, err := f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DepositID)
	assert.False(t, got.Sent)

	// 已投给归集执行器
	require.Len(t, f.settler.submitted, 1)
	deposit := f.settler.submitted[0]
	assert.Equal(t, "base:USDT", deposit.Token)

	// 结算完成 (5% 佣金 min 50 max 200 -> 950)
	require.NoError(t, f.matcher.OnSettled(ctx, deposit, 950, "0xsettle"))

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, domain.Event{
		Event:  "session.settled",
		Params: []any{session.ID, "neo", int64(950)},
	}, f.notifier.events[1])

	got, err = f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)

	d, err := f.repo.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.True(t, d.Settled())
	assert.EqualValues(t, 950, *d.SettledAmount)
}

// 多付: 1500 >= 1000 匹配成功，事件带实际金额
func TestOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	err = f.matcher.HandleTransfers(ctx, "base",
		[]domain.TokenTransfer{transfer(f.customer.Eth, 1500, "0xt1", 0)})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, domain.Event{
		Event:  "session.paid",
		Params: []any{session.ID, "neo", int64(1500)},
	}, f.notifier.events[0])
}

// 少付: 500 < 1000 不匹配，走 unknow.*，但照样结算
func TestUnderpaymentOrphan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	err = f.matcher.HandleTransfers(ctx, "base",
		[]domain.TokenTransfer{transfer(f.customer.Eth, 500, "0xt1", 0)})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, domain.Event{
		Event:  "unknow.paid",
		Params: []any{"neo", int64(500)},
	}, f.notifier.events[0])

	// 会话没动
	got, err := f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DepositID)

	// 孤儿充值也要结算
	require.Len(t, f.settler.submitted, 1)
	require.NoError(t, f.matcher.OnSettled(ctx, f.settler.submitted[0], 450, "0xsettle"))

	assert.Equal(t, domain.Event{
		Event:  "unknow.settled",
		Params: []any{"neo", int64(450)},
	}, f.notifier.events[1])

	// 会话永远 completed=false
	got, err = f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.Sent)
}

// 晚到: 会话过期后的充值当孤儿处理，会话不复活
func TestLatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	// 过期
	require.NoError(t, f.db.Model(&domain.Session{}).Where("id = ?", session.ID).
		Update("expired_at", time.Now().UTC().Add(-time.Hour)).Error)

	err = f.matcher.HandleTransfers(ctx, "base",
		[]domain.TokenTransfer{transfer(f.customer.Eth, 1000, "0xt1", 0)})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "unknow.paid", f.notifier.events[0].Event)

	got, err := f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DepositID)
	assert.False(t, got.Sent)
}

// 重复日志: 同 (tx, log_index) 重放只产生一笔充值一组事件
func TestDuplicateLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	batch := []domain.TokenTransfer{transfer(f.customer.Eth, 1000, "0xt1", 3)}
	require.NoError(t, f.matcher.HandleTransfers(ctx, "base", batch))
	// RPC 重试把同一批又吐了一次
	require.NoError(t, f.matcher.HandleTransfers(ctx, "base", batch))

	assert.Len(t, f.notifier.events, 1)
	assert.Len(t, f.settler.submitted, 1)
}

// 不认识的地址直接忽略
func TestUnknownAddressIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.matcher.HandleTransfers(ctx, "base",
		[]domain.TokenTransfer{transfer("0x9999999999999999999999999999999999999999", 1000, "0xt1", 0)})
	require.NoError(t, err)

	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.settler.submitted)
}

// 两笔充值两个会话: 各绑各的，先到的绑最老的
func TestTwoDepositsTwoSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)
	s2, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	err = f.matcher.HandleTransfers(ctx, "base", []domain.TokenTransfer{
		transfer(f.customer.Eth, 1000, "0xt1", 0),
		transfer(f.customer.Eth, 1000, "0xt2", 0),
	})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, []any{s1.ID, "neo", int64(1000)}, f.notifier.events[0].Params)
	assert.Equal(t, []any{s2.ID, "neo", int64(1000)}, f.notifier.events[1].Params)

	// 一个会话只绑一笔充值
	g1, _ := f.repo.GetSession(ctx, s1.ID)
	g2, _ := f.repo.GetSession(ctx, s2.ID)
	require.NotNil(t, g1.DepositID)
	require.NotNil(t, g2.DepositID)
	assert.NotEqual(t, *g1.DepositID, *g2.DepositID)
}

// x402: 合成充值 + paid/settled 一次走完，金额不抽佣
func TestHandleX402(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.repo.InsertSession(ctx, f.customer.ID, 1000)
	require.NoError(t, err)

	require.NoError(t, f.matcher.HandleX402(ctx, "base", "USDC", f.customer.ID, 1000, "0xa2a"))

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, domain.Event{
		Event:  "session.paid",
		Params: []any{session.ID, "neo", int64(1000)},
	}, f.notifier.events[0])
	assert.Equal(t, domain.Event{
		Event:  "session.settled",
		Params: []any{session.ID, "neo", int64(1000)},
	}, f.notifier.events[1])

	got, err := f.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)

	// x402 不走链上归集
	assert.Empty(t, f.settler.submitted)
}
