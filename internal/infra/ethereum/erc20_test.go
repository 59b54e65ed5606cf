package ethereum

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

// 方法选择器是链上契约，打包出来的前 4 字节必须和标准一致
func TestPackSelectors(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name     string
		data     []byte
		selector string
	}{
		{"transfer", packTransfer(to, big.NewInt(1)), "a9059cbb"},
		{"balanceOf", packBalanceOf(to), "70a08231"},
		{"decimals", packDecimals(), "313ce567"},
		{"authorizationState", packAuthorizationState(to, [32]byte{}), "e94a0102"},
		{
			"transferWithAuthorization",
			packTransferWithAuthorization(to, to, big.NewInt(1), big.NewInt(0), big.NewInt(1), [32]byte{}, 27, [32]byte{}, [32]byte{}),
			"e3ee160e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.selector, hex.EncodeToString(tt.data[:4]))
		})
	}
}

func TestTransferTopic(t *testing.T) {
	// Keccak256("Transfer(address,address,uint256)")
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		TransferTopic.Hex())
}

func TestPackTransferLayout(t *testing.T) {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data := packTransfer(to, big.NewInt(1_000_000))

	// 4 字节选择器 + 2 个 32 字节参数
	assert.Len(t, data, 4+32+32)
	assert.Equal(t, to.Bytes(), data[4+12:4+32])
	assert.Equal(t, big.NewInt(1_000_000), new(big.Int).SetBytes(data[36:]))
}
