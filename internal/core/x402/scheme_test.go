package x402

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zeropay.com/internal/infra/ethereum"
)

var usdc = ethereum.TokenInfo{
	Symbol:   "USDC",
	Address:  common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	Decimals: 6,
}

func testScheme() *EvmScheme {
	return &EvmScheme{
		network:    "base",
		estimation: 600,
		assets: map[common.Address]*evmAsset{
			usdc.Address: {token: usdc, name: "USD Coin", version: "2"},
		},
	}
}

// 签名 -> 恢复 必须闭环
func TestEip712SignRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey)

	now := time.Now().Unix()
	auth := &Authorization{
		From:        payer.Hex(),
		To:          "0xAAA0000000000000000000000000000000000aaa",
		Value:       "10000000",
		ValidAfter:  strconv.FormatInt(now-60, 10),
		ValidBefore: strconv.FormatInt(now+600, 10),
		Nonce:       "0x1122334455667788990011223344556677889900112233445566778899001122",
	}

	td := typedData("USD Coin", "2", big.NewInt(8453), usdc.Address, auth)
	digest, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27 // 链上惯例

	recovered, err := recoverSigner(td, "0x"+hex.EncodeToString(sig))
	require.NoError(t, err)
	assert.Equal(t, payer, recovered)

	// 改一个字段签名就对不上了
	auth2 := *auth
	auth2.Value = "10000001"
	td2 := typedData("USD Coin", "2", big.NewInt(8453), usdc.Address, &auth2)
	recovered2, err := recoverSigner(td2, "0x"+hex.EncodeToString(sig))
	require.NoError(t, err)
	assert.NotEqual(t, payer, recovered2)
}

func TestParseNonce(t *testing.T) {
	n, err := parseNonce("0x0102030405060708091011121314151617181920212223242526272829303132")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), n[0])
	assert.Equal(t, byte(0x32), n[31])

	_, err = parseNonce("0x0102")
	assert.Error(t, err)
	_, err = parseNonce("not hex")
	assert.Error(t, err)
}

func TestHexSignature(t *testing.T) {
	_, err := hexSignature("0x" + "ab")
	assert.Error(t, err)

	raw := make([]byte, 65)
	sig, err := hexSignature("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Len(t, sig, 65)
}

// 授权要求: 金额换算 + 域参数齐全
func TestCreateRequirements(t *testing.T) {
	s := testScheme()

	reqs := s.Create(1000, "0xAAA0000000000000000000000000000000000aaa", "zeropay://customers/neo", "test")
	require.Len(t, reqs, 1)

	r := reqs[0]
	assert.Equal(t, "exact", r.Scheme)
	assert.Equal(t, "base", r.Network)
	assert.Equal(t, "10000000", r.MaxAmountRequired) // 1000 分 = 10 USDC (6 位)
	assert.Equal(t, usdc.Address.Hex(), r.Asset)
	assert.Equal(t, "0xAAA0000000000000000000000000000000000aaa", r.PayTo)
	assert.Equal(t, "zeropay://customers/neo", r.Resource)
	assert.Equal(t, 600, r.MaxTimeoutSeconds)

	assert.Equal(t, "USD Coin", r.Extra["name"])
	assert.Equal(t, "2", r.Extra["version"])
	assert.NotEmpty(t, r.Extra["nonce"])

	// 时间窗口现在就有效
	now := time.Now().Unix()
	va, _ := strconv.ParseInt(r.Extra["validAfter"].(string), 10, 64)
	vb, _ := strconv.ParseInt(r.Extra["validBefore"].(string), 10, 64)
	assert.Less(t, va, now)
	assert.Greater(t, vb, now)

	// 两次生成的 nonce 不同
	reqs2 := s.Create(1000, "0xAAA0000000000000000000000000000000000aaa", "r", "d")
	assert.NotEqual(t, reqs[0].Extra["nonce"], reqs2[0].Extra["nonce"])
}

func TestFacilitatorRouting(t *testing.T) {
	f := NewFacilitator()
	f.Register(testScheme())

	// 版本不对
	_, _, _, _, kindErr := f.Settle(t.Context(), &PaymentRequest{
		PaymentPayload: PaymentPayload{X402Version: 99, Scheme: "exact", Network: "base"},
	})
	require.NotNil(t, kindErr)
	assert.Equal(t, KindInvalidVersion, kindErr.Kind)

	// scheme 不认识
	_, _, _, _, kindErr = f.Settle(t.Context(), &PaymentRequest{
		PaymentPayload: PaymentPayload{X402Version: 1, Scheme: "weird", Network: "base"},
	})
	require.NotNil(t, kindErr)
	assert.Equal(t, KindInvalidScheme, kindErr.Kind)

	// 网络不认识
	_, _, _, _, kindErr = f.Settle(t.Context(), &PaymentRequest{
		PaymentPayload: PaymentPayload{X402Version: 1, Scheme: "exact", Network: "mars"},
	})
	require.NotNil(t, kindErr)
	assert.Equal(t, KindInvalidNetwork, kindErr.Kind)

	// payload 和 requirements 链不一致
	_, _, _, _, kindErr = f.Settle(t.Context(), &PaymentRequest{
		PaymentPayload:      PaymentPayload{X402Version: 1, Scheme: "exact", Network: "base"},
		PaymentRequirements: PaymentRequirements{Network: "polygon"},
	})
	require.NotNil(t, kindErr)
	assert.Equal(t, KindInvalidRequirements, kindErr.Kind)
}

func TestFacilitatorSupport(t *testing.T) {
	f := NewFacilitator()
	f.Register(testScheme())

	sup := f.Support()
	assert.Equal(t, []string{"exact"}, sup.Schemes)
	assert.Equal(t, []string{"base"}, sup.Networks)
}

func TestFacilitatorDiscovery(t *testing.T) {
	f := NewFacilitator()

	d := f.Discovery(0, -5)
	assert.Equal(t, Version, d.X402Version)
	assert.Empty(t, d.Items)
	assert.Equal(t, 20, d.Pagination.Limit)
	assert.Equal(t, 0, d.Pagination.Offset)
}
