package matcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
)

// Settler 每条链一个归集执行器，matcher 只管投任务
type Settler interface {
	Submit(d *domain.Deposit)
}

// Notifier 回调出口，生产环境是 webhook.Notifier
type Notifier interface {
	Enqueue(ctx context.Context, merchantID int64, ev domain.Event)
}

// Matcher 把标准化后的充值绑定到会话，并驱动回调和归集
// 扫描引擎 (HandleTransfers)、归集执行器 (OnSettled)、x402 (HandleX402) 都汇到这里
type Matcher struct {
	customers domain.CustomerRepo
	merchants domain.MerchantRepo
	sessions  domain.SessionRepo
	deposits  domain.DepositRepo

	book     *AddressBook
	notifier Notifier

	mu       sync.RWMutex
	settlers map[string]Settler // chain -> executor
}

// 确保实现接口
var _ domain.TransferHandler = (*Matcher)(nil)

func New(customers domain.CustomerRepo, merchants domain.MerchantRepo,
	sessions domain.SessionRepo, deposits domain.DepositRepo,
	book *AddressBook, notifier Notifier) *Matcher {
	return &Matcher{
		customers: customers,
		merchants: merchants,
		sessions:  sessions,
		deposits:  deposits,
		book:      book,
		notifier:  notifier,
		settlers:  make(map[string]Settler),
	}
}

// RegisterSettler 注册某条链的归集执行器
func (m *Matcher) RegisterSettler(chain string, s Settler) {
	m.mu.Lock()
	m.settlers[chain] = s
	m.mu.Unlock()
}

func (m *Matcher) settler(chain string) Settler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settlers[chain]
}

// HandleTransfers 消化一批链上转账
// 返回 nil 后扫描引擎才会推进游标，所以落库失败必须报错让整批重来
// （重来时靠 (tx, log_index) 唯一索引去重，不会重复入账）
func (m *Matcher) HandleTransfers(ctx context.Context, chain string, transfers []domain.TokenTransfer) error {
	for i := range transfers {
		t := &transfers[i]

		customerID, ok := m.book.Lookup(ctx, t.To)
		if !ok {
			continue // 不是客户地址
		}

		deposit, err := m.deposits.InsertDeposit(ctx, &domain.Deposit{
			CustomerID: customerID,
			Chain:      chain,
			Token:      fmt.Sprintf("%s:%s", chain, t.Symbol),
			Amount:     t.Amount,
			Tx:         t.Tx,
			LogIndex:   t.LogIndex,
		})
		if err != nil {
			return fmt.Errorf("insert deposit %s: %w", t.Tx, err)
		}
		if deposit == nil {
			// 重复观察 (重组重放)，静默丢弃
			continue
		}

		logger.Info(ctx, "💰 deposit observed",
			zap.String("chain", chain),
			zap.String("token", t.Symbol),
			zap.Int64("customer", customerID),
			zap.Int64("amount", t.Amount),
			zap.String("tx", t.Tx))
		metrics.DepositsObserved.WithLabelValues(chain, t.Symbol).Inc()

		if err := m.onDeposit(ctx, deposit); err != nil {
			return err
		}

		if s := m.settler(chain); s != nil {
			s.Submit(deposit)
		}
	}
	return nil
}

// onDeposit 绑会话 + 发 paid 事件
func (m *Matcher) onDeposit(ctx context.Context, d *domain.Deposit) error {
	customer, err := m.customers.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		return err
	}
	merchant, err := m.merchants.GetMerchant(ctx, customer.MerchantID)
	if err != nil {
		return err
	}

	session, err := m.sessions.Match(ctx, d.CustomerID, d.Amount, d.ID)
	if err != nil {
		return err
	}

	if session != nil {
		m.notifier.Enqueue(ctx, merchant.ID, domain.SessionPaid(session.ID, customer.Account, d.Amount))
	} else {
		// 金额不够 / 会话过期 / 根本没有会话 -> 孤儿充值，照样结算
		m.notifier.Enqueue(ctx, merchant.ID, domain.UnknowPaid(customer.Account, d.Amount))
	}
	return nil
}

// OnSettled 归集终局后的收尾：落结算字段、标记会话、发 settled 事件
// settledTx 为空表示佣金吃掉了全部金额，没有上链
func (m *Matcher) OnSettled(ctx context.Context, d *domain.Deposit, settledAmount int64, settledTx string) error {
	if err := m.deposits.SettleDeposit(ctx, d.ID, settledAmount, settledTx); err != nil {
		return err
	}

	customer, err := m.customers.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		return err
	}
	merchant, err := m.merchants.GetMerchant(ctx, customer.MerchantID)
	if err != nil {
		return err
	}

	session, err := m.sessions.GetByDeposit(ctx, d.ID)
	if err != nil {
		return err
	}

	if session != nil {
		if err := m.sessions.MarkSent(ctx, session.ID); err != nil {
			return err
		}
		m.notifier.Enqueue(ctx, merchant.ID, domain.SessionSettled(session.ID, customer.Account, settledAmount))
	} else {
		m.notifier.Enqueue(ctx, merchant.ID, domain.UnknowSettled(customer.Account, settledAmount))
	}
	return nil
}

// HandleX402 x402 结算走同一条流水线：合成一条已结算的充值
// 资金直接进了商户钱包，所以 settled_amount == amount，不收佣金
func (m *Matcher) HandleX402(ctx context.Context, chain, symbol string, customerID, amount int64, tx string) error {
	deposit, err := m.deposits.InsertDeposit(ctx, &domain.Deposit{
		CustomerID: customerID,
		Chain:      chain,
		Token:      fmt.Sprintf("%s:%s", chain, symbol),
		Amount:     amount,
		Tx:         tx,
		LogIndex:   0,
	})
	if err != nil {
		return err
	}
	if deposit == nil {
		return nil // 同一笔授权不会提交两次，这里只是兜底
	}

	if err := m.onDeposit(ctx, deposit); err != nil {
		return err
	}
	return m.OnSettled(ctx, deposit, amount, tx)
}
