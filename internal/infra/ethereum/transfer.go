package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"zeropay.com/pkg/logger"
)

var (
	// ErrAdminUnderfunded 管理账户没钱出 gas 了，重试没有意义，必须人工补钱
	ErrAdminUnderfunded = errors.New("admin wallet underfunded")
	// ErrNoBalance 充值地址上没有对应余额（可能还没到账或已被归集）
	ErrNoBalance = errors.New("no token balance on deposit address")
	// ErrTxReverted 链上执行失败
	ErrTxReverted = errors.New("transaction reverted")
)

// 一笔 ERC-20 transfer 的 gas 上限（USDT 这类非标合约留些余量）
const erc20TransferGasLimit = 90000

// ForwardRequest 把一笔充值从客户地址归集走
type ForwardRequest struct {
	DepositKey  *ecdsa.PrivateKey // 充值地址的推导私钥
	Token       TokenInfo
	Merchant    common.Address
	SettleUnits *big.Int // 给商户的部分
	FeeUnits    *big.Int // 佣金，划到管理账户
}

// Forward 归集流程：
// 1. 校验余额
// 2. 管理账户给充值地址打一笔刚好够用的 gas
// 3. 用充值地址私钥发 transfer(merchant, settled)，等 latency 个确认
// 4. 佣金 > 0 再发一笔 transfer(admin, fee)（失败只记日志，不影响结算结果）
// 返回给商户那笔的交易哈希
func (a *Adapter) Forward(ctx context.Context, req *ForwardRequest) (string, error) {
	depositAddr := crypto.PubkeyToAddress(req.DepositKey.PublicKey)

	// 重试路径：上一轮发出去的交易可能还在内存池，等它清掉再看余额，
	// 否则会对同一笔充值二次归集
	if err := a.waitPendingClear(ctx, depositAddr); err != nil {
		return "", err
	}

	need := new(big.Int).Add(req.SettleUnits, req.FeeUnits)
	balance, err := a.TokenBalance(ctx, req.Token.Address, depositAddr)
	if err != nil {
		return "", err
	}
	if balance.Sign() == 0 || balance.Cmp(need) < 0 {
		return "", fmt.Errorf("%w: have %s need %s", ErrNoBalance, balance, need)
	}

	gasPrice, err := a.gasPrice(ctx)
	if err != nil {
		return "", err
	}

	// 两笔 transfer 的 gas 预算
	txCount := int64(1)
	if req.FeeUnits.Sign() > 0 {
		txCount = 2
	}
	gasBudget := new(big.Int).Mul(gasPrice, big.NewInt(erc20TransferGasLimit*txCount))

	if err := a.fundGas(ctx, depositAddr, gasBudget, gasPrice); err != nil {
		return "", err
	}

	// 给商户的归集转账
	settleTx, err := a.sendTokenTransfer(ctx, req.DepositKey, req.Token.Address, req.Merchant, req.SettleUnits, gasPrice, 0)
	if err != nil {
		return "", err
	}
	if err := a.waitConfirmed(ctx, settleTx, a.latency); err != nil {
		return "", err
	}
	logger.Info(ctx, "✅ settle transfer confirmed",
		zap.String("chain", a.chain),
		zap.String("deposit_addr", depositAddr.Hex()),
		zap.String("tx", settleTx.Hex()))

	// 佣金划走，失败不回滚（钱还在充值地址上，运营可以再扫）
	if req.FeeUnits.Sign() > 0 {
		feeTx, err := a.sendTokenTransfer(ctx, req.DepositKey, req.Token.Address, a.adminAddr, req.FeeUnits, gasPrice, 0)
		if err != nil {
			logger.Warn(ctx, "commission sweep failed",
				zap.String("chain", a.chain),
				zap.String("deposit_addr", depositAddr.Hex()),
				zap.Error(err))
		} else if err := a.waitMined(ctx, feeTx); err != nil {
			logger.Warn(ctx, "commission sweep not mined",
				zap.String("chain", a.chain),
				zap.String("tx", feeTx.Hex()),
				zap.Error(err))
		}
	}

	return settleTx.Hex(), nil
}

// fundGas 充值地址上没 gas，管理账户先打一笔过去
// 已经够用就跳过（重试路径）
func (a *Adapter) fundGas(ctx context.Context, to common.Address, budget, gasPrice *big.Int) error {
	native, err := a.client.BalanceAt(ctx, to, nil)
	if err != nil {
		return err
	}
	if native.Cmp(budget) >= 0 {
		return nil
	}

	adminBalance, err := a.client.BalanceAt(ctx, a.adminAddr, nil)
	if err != nil {
		return err
	}
	// 管理账户余额要覆盖打款 + 自己那笔的 gas
	selfCost := new(big.Int).Mul(gasPrice, big.NewInt(21000))
	if adminBalance.Cmp(new(big.Int).Add(budget, selfCost)) < 0 {
		return fmt.Errorf("%w: balance %s, need %s", ErrAdminUnderfunded, adminBalance, budget)
	}

	a.adminMu.Lock()
	nonce, err := a.client.PendingNonceAt(ctx, a.adminAddr)
	if err != nil {
		a.adminMu.Unlock()
		return err
	}
	tx := types.NewTransaction(nonce, to, budget, 21000, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.admin)
	if err != nil {
		a.adminMu.Unlock()
		return err
	}
	err = a.client.SendTransaction(ctx, signed)
	a.adminMu.Unlock()
	if err != nil {
		return err
	}

	logger.Debug(ctx, "gas funding sent",
		zap.String("chain", a.chain),
		zap.String("to", to.Hex()),
		zap.String("amount", budget.String()))

	return a.waitMined(ctx, signed.Hash())
}

// sendTokenTransfer 用充值地址私钥发一笔 ERC-20 transfer
// nonceOffset: 加在 PendingNonceAt 的结果上；PendingNonceAt 已计入在途和已落块的交易，前一笔确认后再发传 0
func (a *Adapter) sendTokenTransfer(ctx context.Context, key *ecdsa.PrivateKey,
	token, to common.Address, value, gasPrice *big.Int, nonceOffset uint64) (common.Hash, error) {

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}

	data := packTransfer(to, value)
	tx := types.NewTransaction(nonce+nonceOffset, token, big.NewInt(0), erc20TransferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), key)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// waitPendingClear 等地址上所有在途交易落块
func (a *Adapter) waitPendingClear(ctx context.Context, addr common.Address) error {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		pending, err := a.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return err
		}
		latest, err := a.client.NonceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		if pending == latest {
			return nil
		}

		logger.Debug(ctx, "waiting in-flight tx to clear",
			zap.String("chain", a.chain),
			zap.String("addr", addr.Hex()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitMined 等交易落块并检查执行状态
func (a *Adapter) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitConfirmed 落块后再等 confirmations 个块
func (a *Adapter) waitConfirmed(ctx context.Context, hash common.Hash, confirmations uint64) error {
	if err := a.waitMined(ctx, hash); err != nil {
		return err
	}

	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return err
	}
	target := receipt.BlockNumber.Uint64() + confirmations

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		head, err := a.client.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
