package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"zeropay.com/pkg/logger"
)

// Authorization EIP-3009 transferWithAuthorization 的参数集
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
	V           uint8
	R           [32]byte
	S           [32]byte
}

// AuthorizationUsed 合约侧查 nonce 是否已消费
func (a *Adapter) AuthorizationUsed(ctx context.Context, token, from common.Address, nonce [32]byte) (bool, error) {
	out, err := a.call(ctx, token, packAuthorizationState(from, nonce))
	if err != nil {
		return false, err
	}
	return unpackBool("authorizationState", out)
}

// SimulateAuthorization 上链前先 eth_call 模拟一遍，坏单不浪费 gas
func (a *Adapter) SimulateAuthorization(ctx context.Context, token common.Address, auth *Authorization) error {
	data := packTransferWithAuthorization(auth.From, auth.To, auth.Value,
		auth.ValidAfter, auth.ValidBefore, auth.Nonce, auth.V, auth.R, auth.S)

	_, err := a.client.CallContract(ctx, ethereum.CallMsg{
		From: a.adminAddr,
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	return nil
}

// SubmitAuthorization 管理账户提交 transferWithAuthorization（gas 由网关出）
// 等 latency 个确认后返回交易哈希
func (a *Adapter) SubmitAuthorization(ctx context.Context, token common.Address, auth *Authorization) (string, error) {
	data := packTransferWithAuthorization(auth.From, auth.To, auth.Value,
		auth.ValidAfter, auth.ValidBefore, auth.Nonce, auth.V, auth.R, auth.S)

	gasPrice, err := a.gasPrice(ctx)
	if err != nil {
		return "", err
	}

	a.adminMu.Lock()
	nonce, err := a.client.PendingNonceAt(ctx, a.adminAddr)
	if err != nil {
		a.adminMu.Unlock()
		return "", err
	}

	gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From: a.adminAddr,
		To:   &token,
		Data: data,
	})
	if err != nil {
		a.adminMu.Unlock()
		return "", err
	}
	gasLimit = gasLimit * 105 / 100

	tx := types.NewTransaction(nonce, token, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.admin)
	if err != nil {
		a.adminMu.Unlock()
		return "", err
	}
	err = a.client.SendTransaction(ctx, signed)
	a.adminMu.Unlock()
	if err != nil {
		return "", err
	}

	logger.Info(ctx, "x402 authorization submitted",
		zap.String("chain", a.chain),
		zap.String("from", auth.From.Hex()),
		zap.String("tx", signed.Hash().Hex()))

	if err := a.waitConfirmed(ctx, signed.Hash(), a.latency); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}
