package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"zeropay.com/internal/domain"
	"zeropay.com/pkg/logger"
	"zeropay.com/pkg/metrics"
	"zeropay.com/pkg/ratelimit"
)

type TokenInfo struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// Adapter 一条 EVM 链的访问入口
// 扫日志、归集转账、x402 上链都走它；管理账户的 nonce 由 adminMu 串行化
type Adapter struct {
	chain   string
	client  *ethclient.Client
	chainID *big.Int
	latency uint64

	admin     *ecdsa.PrivateKey
	adminAddr common.Address
	adminMu   sync.Mutex // 管理账户 nonce 只有一个协调者

	tokens  map[common.Address]TokenInfo
	breaker *ratelimit.Manager
}

// 确保实现接口
var _ domain.ChainAdapter = (*Adapter)(nil)

func New(ctx context.Context, chain, rpcURL, adminKeyHex string, latency int64, breaker *ratelimit.Manager) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain, err)
	}

	// 获取 ChainID (签名防重放)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id %s: %w", chain, err)
	}

	admin, err := crypto.HexToECDSA(strings.TrimPrefix(adminKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("admin key %s: %w", chain, err)
	}

	return &Adapter{
		chain:     chain,
		client:    client,
		chainID:   chainID,
		latency:   uint64(latency),
		admin:     admin,
		adminAddr: crypto.PubkeyToAddress(admin.PublicKey),
		tokens:    make(map[common.Address]TokenInfo),
		breaker:   breaker,
	}, nil
}

// AddToken 注册要监控的代币，顺便拉精度（也当作 RPC 连通性检查）
func (a *Adapter) AddToken(ctx context.Context, symbol, address string) error {
	addr := common.HexToAddress(address)
	out, err := a.call(ctx, addr, packDecimals())
	if err != nil {
		return fmt.Errorf("token %s decimals: %w", symbol, err)
	}
	dec, err := unpackUint8("decimals", out)
	if err != nil {
		return fmt.Errorf("token %s decimals: %w", symbol, err)
	}

	a.tokens[addr] = TokenInfo{Symbol: symbol, Address: addr, Decimals: dec}
	logger.Info(ctx, "token registered",
		zap.String("chain", a.chain),
		zap.String("symbol", symbol),
		zap.String("contract", addr.Hex()),
		zap.Uint8("decimals", dec))
	return nil
}

func (a *Adapter) Chain() string           { return a.chain }
func (a *Adapter) ChainID() *big.Int       { return a.chainID }
func (a *Adapter) AdminAddress() string    { return a.adminAddr.Hex() }
func (a *Adapter) Latency() uint64         { return a.latency }
func (a *Adapter) Tokens() []TokenInfo {
	out := make([]TokenInfo, 0, len(a.tokens))
	for _, t := range a.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TokenBySymbol 按符号找已注册代币
func (a *Adapter) TokenBySymbol(symbol string) (TokenInfo, bool) {
	for _, t := range a.tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// TokenByAddress 按合约地址找已注册代币
func (a *Adapter) TokenByAddress(addr common.Address) (TokenInfo, bool) {
	t, ok := a.tokens[addr]
	return t, ok
}

// BlockNumber 当前链头
func (a *Adapter) BlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := a.breaker.Do(a.chain, func() error {
		var e error
		height, e = a.client.BlockNumber(ctx)
		return e
	})
	if err != nil {
		metrics.RpcErrors.WithLabelValues(a.chain, "blockNumber").Inc()
		return 0, err
	}
	return height, nil
}

// FilterTransfers 拉区间内所有已配置代币的 Transfer 日志并标准化
func (a *Adapter) FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]domain.TokenTransfer, error) {
	addresses := make([]common.Address, 0, len(a.tokens))
	for addr := range a.tokens {
		addresses = append(addresses, addr)
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    [][]common.Hash{{TransferTopic}},
	}

	var logs []types.Log
	err := a.breaker.Do(a.chain, func() error {
		var e error
		logs, e = a.client.FilterLogs(ctx, query)
		return e
	})
	if err != nil {
		metrics.RpcErrors.WithLabelValues(a.chain, "getLogs").Inc()
		return nil, err
	}

	transfers := make([]domain.TokenTransfer, 0, len(logs))
	for _, vLog := range logs {
		// Transfer(address indexed from, address indexed to, uint256 value)
		if len(vLog.Topics) != 3 || vLog.Removed {
			continue
		}
		token, ok := a.tokens[vLog.Address]
		if !ok {
			continue
		}

		to := common.BytesToAddress(vLog.Topics[2].Bytes())
		units := new(big.Int).SetBytes(vLog.Data)
		cents := UnitsToCents(units, token.Decimals)
		if cents <= 0 {
			// 尘埃，不足一分，直接丢
			continue
		}

		transfers = append(transfers, domain.TokenTransfer{
			Chain:    a.chain,
			Symbol:   token.Symbol,
			Token:    token.Address.Hex(),
			To:       to.Hex(),
			Amount:   cents,
			Units:    units,
			Tx:       vLog.TxHash.Hex(),
			LogIndex: vLog.Index,
			Block:    vLog.BlockNumber,
		})
	}

	// 按 (block, log_index) 排序后交给 matcher
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].Block != transfers[j].Block {
			return transfers[i].Block < transfers[j].Block
		}
		return transfers[i].LogIndex < transfers[j].LogIndex
	})

	return transfers, nil
}

// TokenName EIP-712 域里的代币名 (如 "USD Coin")
func (a *Adapter) TokenName(ctx context.Context, token common.Address) (string, error) {
	out, err := a.call(ctx, token, packName())
	if err != nil {
		return "", err
	}
	return unpackString("name", out)
}

// TokenVersion EIP-712 域版本；老合约没有 version()，默认 "1"
func (a *Adapter) TokenVersion(ctx context.Context, token common.Address) string {
	out, err := a.call(ctx, token, packVersion())
	if err != nil {
		return "1"
	}
	v, err := unpackString("version", out)
	if err != nil || v == "" {
		return "1"
	}
	return v
}

// TokenBalance 某地址的代币余额
func (a *Adapter) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := a.call(ctx, token, packBalanceOf(owner))
	if err != nil {
		return nil, err
	}
	return unpackBig("balanceOf", out)
}

// call 只读合约调用
func (a *Adapter) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := a.breaker.Do(a.chain, func() error {
		var e error
		out, e = a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return e
	})
	if err != nil {
		metrics.RpcErrors.WithLabelValues(a.chain, "call").Inc()
	}
	return out, err
}

// gasPrice 建议价上浮 5%，避免卡池
func (a *Adapter) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		metrics.RpcErrors.WithLabelValues(a.chain, "gasPrice").Inc()
		return nil, err
	}
	return price.Mul(price, big.NewInt(105)).Div(price, big.NewInt(100)), nil
}
