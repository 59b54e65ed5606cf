package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleToml = `
[[chains]]
chain_type = "evm"
chain_name = "base"
latency = 6
estimation = 30
commission = 5
commission_min = 50
commission_max = 200
admin = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
rpc = "https://base.example"
tokens = ["USDT:0xdAC17F958D2ee523a2206206994597C13D831ec7", "USDC:0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"]

[[chains]]
chain_type = "evm"
chain_name = "polygon"
latency = 30
estimation = 60
commission = 5
commission_min = 50
commission_max = 200
admin = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
rpc = "https://polygon.example"
tokens = ["USDT:0xc2132D05D31c914a87C6611C10748AEb04B58e8F"]
`

func writeScannerConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "root:pass@tcp(127.0.0.1:3306)/zeropay?parseTime=true")
	t.Setenv("MNEMONICS", "test test test test test test test test test test test junk")
	t.Setenv("APIKEY", "k")
	t.Setenv("WALLET", "0xAAA0000000000000000000000000000000000aaa")
	t.Setenv("WEBHOOK", "https://merchant.example/hook")
	t.Setenv("SCANNER_CONFIG", writeScannerConfig(t, sampleToml))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port) // 默认
	assert.Equal(t, "k", cfg.Apikey)
	require.Len(t, cfg.Scanner.Chains, 2)

	base := cfg.Scanner.Chains[0]
	assert.Equal(t, "evm", base.ChainType)
	assert.Equal(t, "base", base.ChainName)
	assert.EqualValues(t, 6, base.Latency)
	assert.EqualValues(t, 5, base.Commission)
	assert.EqualValues(t, 50, base.CommissionMin)
	assert.EqualValues(t, 200, base.CommissionMax)

	entries, err := base.TokenEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "USDT", entries[0][0])
	assert.Equal(t, "0xdAC17F958D2ee523a2206206994597C13D831ec7", entries[0][1])
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MNEMONICS", "whatever")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "root@tcp(127.0.0.1)/db")
	t.Setenv("MNEMONICS", "")
	_, err = Load()
	assert.ErrorContains(t, err, "MNEMONICS")
}

func TestValidateAdminReuse(t *testing.T) {
	t.Setenv("DATABASE_URL", "root@tcp(127.0.0.1)/db")
	t.Setenv("MNEMONICS", "m")

	// 两条链复用同一把管理私钥必须被拒绝
	reused := `
[[chains]]
chain_name = "base"
admin = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
rpc = "https://base.example"
tokens = ["USDT:0x1"]

[[chains]]
chain_name = "polygon"
admin = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
rpc = "https://polygon.example"
tokens = ["USDT:0x2"]
`
	t.Setenv("SCANNER_CONFIG", writeScannerConfig(t, reused))
	_, err := Load()
	assert.ErrorContains(t, err, "admin key reused")
}

func TestValidateBadToken(t *testing.T) {
	t.Setenv("DATABASE_URL", "root@tcp(127.0.0.1)/db")
	t.Setenv("MNEMONICS", "m")

	bad := `
[[chains]]
chain_name = "base"
admin = "0xac09"
rpc = "https://base.example"
tokens = ["USDTnoaddr"]
`
	t.Setenv("SCANNER_CONFIG", writeScannerConfig(t, bad))
	_, err := Load()
	assert.ErrorContains(t, err, "invalid token entry")
}
