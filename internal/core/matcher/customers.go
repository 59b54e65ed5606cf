package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/hdwallet"
	"zeropay.com/pkg/logger"
)

// CustomerService 分配客户和充值地址
// 客户 id 就是推导索引，先入库拿 id 再推导地址
type CustomerService struct {
	customers domain.CustomerRepo
	wallet    *hdwallet.HDWallet
	book      *AddressBook
}

func NewCustomerService(customers domain.CustomerRepo, wallet *hdwallet.HDWallet, book *AddressBook) *CustomerService {
	return &CustomerService{customers: customers, wallet: wallet, book: book}
}

// GetOrCreate 取或创建客户，新地址会进监控集合
func (s *CustomerService) GetOrCreate(ctx context.Context, merchantID int64, account string) (*domain.Customer, error) {
	c, err := s.customers.GetOrInsertCustomer(ctx, merchantID, account, func(id int64) (string, error) {
		addr, _, err := s.wallet.DeriveAddress(uint32(id))
		if err != nil {
			return "", fmt.Errorf("derive address for customer %d: %w", id, err)
		}
		return addr, nil
	})
	if err != nil {
		return nil, err
	}

	s.book.Add(ctx, c.Eth, c.ID)

	logger.Debug(ctx, "customer ready",
		zap.Int64("merchant", merchantID),
		zap.String("account", account),
		zap.String("eth", c.Eth))
	return c, nil
}
