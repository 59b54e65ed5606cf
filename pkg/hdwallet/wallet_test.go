package hdwallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hardhat/anvil 默认助记词，m/44'/60'/0'/0/i 的地址是公开已知的，
// 正好拿来当跨平台确定性校验
const testMnemonic = "test test test test test test test test test test test junk"

func TestDeriveAddressDeterminism(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	tests := []struct {
		name    string
		idx     uint32
		want    string
	}{
		{"账户 0", 0, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
		{"账户 1", 1, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
		{"账户 2", 2, "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, key, err := wallet.DeriveAddress(tt.idx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr, "地址必须和公开推导结果一致 (EIP-55)")
			assert.NotNil(t, key)
		})
	}

	// 同一个 id 重复推导必须逐字节一致
	a1, k1, err := wallet.DeriveAddress(42)
	require.NoError(t, err)
	a2, k2, err := wallet.DeriveAddress(42)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, PrivateKeyHex(k1), PrivateKeyHex(k2))

	// 另一个实例（同助记词）推导结果也一致
	wallet2, err := New(testMnemonic)
	require.NoError(t, err)
	a3, _, err := wallet2.DeriveAddress(42)
	require.NoError(t, err)
	assert.Equal(t, a1, a3)
}

func TestDeriveAddressWellKnownKey(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	// hardhat 账户 0 的私钥是公开的
	_, key, err := wallet.DeriveAddress(0)
	require.NoError(t, err)
	assert.Equal(t, "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", PrivateKeyHex(key))
}

func TestDeriveAddressDistinct(t *testing.T) {
	wallet, err := New(testMnemonic)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := uint32(0); i < 50; i++ {
		addr, _, err := wallet.DeriveAddress(i)
		require.NoError(t, err)
		assert.False(t, seen[addr], "不同客户 id 不能撞地址")
		assert.Len(t, addr, 42)
		seen[addr] = true
	}
}

func TestNewInvalidMnemonic(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("not a valid mnemonic at all")
	assert.Error(t, err)
}
