package x402

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"zeropay.com/internal/infra/ethereum"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
)

// 已用 nonce 的 Redis 缓存，合约查询之前先快速失败
const nonceKeyPrefix = "x402:nonce:"

// evmAsset 一个支持 EIP-3009 的代币
type evmAsset struct {
	token   ethereum.TokenInfo
	name    string // EIP-712 域名称，来自合约 name()
	version string // EIP-712 域版本，来自合约 version()
}

// EvmScheme "exact" 方案在一条 EVM 链上的实现
type EvmScheme struct {
	network    string
	estimation int // 预计结算秒数，当作授权时间窗口
	adapter    *ethereum.Adapter
	rdb        *redis.Client
	assets     map[common.Address]*evmAsset
}

func NewEvmScheme(adapter *ethereum.Adapter, rdb *redis.Client, network string, estimation int) *EvmScheme {
	if estimation <= 0 {
		estimation = 600
	}
	return &EvmScheme{
		network:    network,
		estimation: estimation,
		adapter:    adapter,
		rdb:        rdb,
		assets:     make(map[common.Address]*evmAsset),
	}
}

// AddAsset 注册代币，顺便校验合约真的实现了 EIP-3009
func (s *EvmScheme) AddAsset(ctx context.Context, token ethereum.TokenInfo) error {
	name, err := s.adapter.TokenName(ctx, token.Address)
	if err != nil || name == "" {
		name = token.Symbol
	}
	version := s.adapter.TokenVersion(ctx, token.Address)

	// authorizationState 不存在的合约不支持 EIP-3009，注册就该失败
	if _, err := s.adapter.AuthorizationUsed(ctx, token.Address, common.Address{}, [32]byte{}); err != nil {
		return fmt.Errorf("token %s does not support EIP-3009: %w", token.Symbol, err)
	}

	s.assets[token.Address] = &evmAsset{token: token, name: name, version: version}
	logger.Info(ctx, "x402 asset registered",
		zap.String("network", s.network),
		zap.String("symbol", token.Symbol),
		zap.String("eip712_name", name),
		zap.String("eip712_version", version))
	return nil
}

func (s *EvmScheme) Network() string { return s.network }

// Create 为 (金额, 收款人) 生成可签的授权要求，每个资产一条
func (s *EvmScheme) Create(amountCents int64, payTo, resource, description string) []PaymentRequirements {
	now := time.Now().Unix()
	out := make([]PaymentRequirements, 0, len(s.assets))

	for _, asset := range s.assets {
		units := ethereum.CentsToUnits(amountCents, asset.token.Decimals)

		var nonce [32]byte
		_, _ = rand.Read(nonce[:])

		out = append(out, PaymentRequirements{
			Scheme:            SchemeExact,
			Network:           s.network,
			MaxAmountRequired: units.String(),
			Asset:             asset.token.Address.Hex(),
			PayTo:             payTo,
			Resource:          resource,
			Description:       description,
			MaxTimeoutSeconds: s.estimation,
			Extra: map[string]any{
				"name":        asset.name,
				"version":     asset.version,
				"validAfter":  strconv.FormatInt(now-600, 10),
				"validBefore": strconv.FormatInt(now+int64(s.estimation), 10),
				"nonce":       "0x" + hex.EncodeToString(nonce[:]),
			},
		})
	}
	return out
}

// Verify 不上链的全套校验，任何一步失败授权都不会被提交
func (s *EvmScheme) Verify(ctx context.Context, req *PaymentRequest) *Error {
	// 1. 签名校验
	if !common.IsHexAddress(req.PaymentRequirements.Asset) {
		return NewError(KindInvalidRequirements)
	}
	token := common.HexToAddress(req.PaymentRequirements.Asset)
	asset, ok := s.assets[token]
	if !ok {
		return NewError(KindInvalidRequirements)
	}

	auth := &req.PaymentPayload.Payload.Authorization
	td := typedData(asset.name, asset.version, s.adapter.ChainID(), token, auth)
	signer, err := recoverSigner(td, req.PaymentPayload.Payload.Signature)
	if err != nil {
		return NewError(KindInvalidSignature)
	}
	if !common.IsHexAddress(auth.From) || signer != common.HexToAddress(auth.From) {
		return NewError(KindInvalidSignature)
	}

	// 2. 余额
	from := common.HexToAddress(auth.From)
	balance, err := s.adapter.TokenBalance(ctx, token, from)
	if err != nil {
		return NewError(KindVerifyError)
	}

	// 3. 金额
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return NewError(KindInvalidPayload)
	}
	required, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok {
		return NewError(KindInvalidRequirements)
	}
	if balance.Cmp(value) < 0 {
		return NewError(KindInsufficientFunds)
	}
	if value.Cmp(required) < 0 {
		return NewError(KindInvalidValue)
	}

	// 4. 时间窗口
	now := time.Now().Unix()
	validAfter, err1 := strconv.ParseInt(auth.ValidAfter, 10, 64)
	validBefore, err2 := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err1 != nil || err2 != nil {
		return NewError(KindInvalidPayload)
	}
	if now < validAfter {
		return NewError(KindInvalidValidAfter)
	}
	if now > validBefore {
		return NewError(KindInvalidValidBefore)
	}

	// 5. 收款人匹配
	if !common.IsHexAddress(auth.To) || !common.IsHexAddress(req.PaymentRequirements.PayTo) {
		return NewError(KindInvalidPayload)
	}
	if common.HexToAddress(auth.To) != common.HexToAddress(req.PaymentRequirements.PayTo) {
		return NewError(KindRecipientMismatch)
	}

	// 6. nonce 未消费：本地缓存快速失败，合约兜底
	nonce, err := parseNonce(auth.Nonce)
	if err != nil {
		return NewError(KindInvalidPayload)
	}
	if exists, _ := s.rdb.Exists(ctx, s.nonceKey(auth.From, auth.Nonce)).Result(); exists > 0 {
		return NewError(KindNonceUsed)
	}
	used, err := s.adapter.AuthorizationUsed(ctx, token, from, nonce)
	if err != nil {
		return NewError(KindVerifyError)
	}
	if used {
		return NewError(KindNonceUsed)
	}

	return nil
}

// Settle 校验通过后真正上链，返回交易哈希和入账金额（分）
func (s *EvmScheme) Settle(ctx context.Context, req *PaymentRequest) (string, int64, string, *Error) {
	if kindErr := s.Verify(ctx, req); kindErr != nil {
		return "", 0, "", kindErr
	}

	auth := &req.PaymentPayload.Payload.Authorization
	token := common.HexToAddress(req.PaymentRequirements.Asset)
	asset := s.assets[token]

	// 抢占 nonce，同一笔授权并发提交只放一个过去
	claimTTL := time.Duration(s.estimation)*time.Second + time.Hour
	okClaim, err := s.rdb.SetNX(ctx, s.nonceKey(auth.From, auth.Nonce), "1", claimTTL).Result()
	if err == nil && !okClaim {
		return "", 0, "", NewError(KindNonceUsed)
	}

	chainAuth, kindErr := s.buildAuthorization(req)
	if kindErr != nil {
		return "", 0, "", kindErr
	}

	// 先模拟，坏单不浪费 gas
	if err := s.adapter.SimulateAuthorization(ctx, token, chainAuth); err != nil {
		s.rdb.Del(ctx, s.nonceKey(auth.From, auth.Nonce))
		metrics.X402Settlements.WithLabelValues(s.network, "failed").Inc()
		return "", 0, "", NewError(KindTransactionFailed)
	}

	txHash, err := s.adapter.SubmitAuthorization(ctx, token, chainAuth)
	if err != nil {
		// 提交失败释放抢占，允许付款方重试
		s.rdb.Del(ctx, s.nonceKey(auth.From, auth.Nonce))
		logger.Error(ctx, "x402 settle failed",
			zap.String("network", s.network),
			zap.String("from", auth.From),
			zap.Error(err))
		metrics.X402Settlements.WithLabelValues(s.network, "failed").Inc()
		return "", 0, "", NewError(KindSettleError)
	}

	cents := ethereum.UnitsToCents(chainAuth.Value, asset.token.Decimals)
	metrics.X402Settlements.WithLabelValues(s.network, "ok").Inc()
	return txHash, cents, asset.token.Symbol, nil
}

func (s *EvmScheme) buildAuthorization(req *PaymentRequest) (*ethereum.Authorization, *Error) {
	auth := &req.PaymentPayload.Payload.Authorization

	value, ok1 := new(big.Int).SetString(auth.Value, 10)
	validAfter, ok2 := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, ok3 := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok1 || !ok2 || !ok3 {
		return nil, NewError(KindInvalidPayload)
	}
	nonce, err := parseNonce(auth.Nonce)
	if err != nil {
		return nil, NewError(KindInvalidPayload)
	}

	sig, err := hexSignature(req.PaymentPayload.Payload.Signature)
	if err != nil {
		return nil, NewError(KindInvalidSignature)
	}

	out := &ethereum.Authorization{
		From:        common.HexToAddress(auth.From),
		To:          common.HexToAddress(auth.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
		V:           sig[64],
	}
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	if out.V < 27 {
		out.V += 27 // 合约侧要 27/28
	}
	return out, nil
}

func (s *EvmScheme) nonceKey(from, nonce string) string {
	return nonceKeyPrefix + s.network + ":" + from + ":" + nonce
}
