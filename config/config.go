package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 进程级配置，全部来自环境变量 + SCANNER_CONFIG 指向的 TOML
type Config struct {
	Port        int
	DatabaseURL string
	RedisURL    string

	// 助记词，所有客户地址从它推导
	Mnemonics string

	// 默认商户（单租户模式）：收款钱包 / apikey / webhook
	Wallet  string
	Apikey  string
	Webhook string

	// 商户控制台 JWT 的签名种子
	Secret string

	LogLevel string

	Scanner ScannerConfig
}

// ScannerConfig 对应 TOML 里的 [[chains]] 数组
type ScannerConfig struct {
	Chains []ChainConfig `mapstructure:"chains"`
}

type ChainConfig struct {
	ChainType  string `mapstructure:"chain_type"` // 目前只有 "evm"
	ChainName  string `mapstructure:"chain_name"`
	Latency    int64  `mapstructure:"latency"`    // 确认区块数
	Estimation int    `mapstructure:"estimation"` // 预计到账秒数 (给 x402 的时间窗口用)
	// 佣金: clamp(amount*commission/100, min, max)，单位是分
	Commission    int64 `mapstructure:"commission"`
	CommissionMin int64 `mapstructure:"commission_min"`
	CommissionMax int64 `mapstructure:"commission_max"`
	// 管理账户私钥 (出 gas)，每条链独立，不允许复用
	Admin string `mapstructure:"admin"`
	Rpc   string `mapstructure:"rpc"`
	// 代币列表，格式 "SYMBOL:0xcontract"
	Tokens []string `mapstructure:"tokens"`
}

// TokenEntries 拆开 "SYMBOL:0x..." 形式的配置项
func (c *ChainConfig) TokenEntries() ([][2]string, error) {
	out := make([][2]string, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		symbol, addr, ok := strings.Cut(t, ":")
		if !ok || symbol == "" || addr == "" {
			return nil, fmt.Errorf("invalid token entry %q, want SYMBOL:0xaddress", t)
		}
		out = append(out, [2]string{symbol, addr})
	}
	return out, nil
}

// Load 读取环境变量和扫描配置文件
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", 9000)
	v.SetDefault("REDIS_URL", "redis://127.0.0.1:6379")
	v.SetDefault("SCANNER_CONFIG", "config.toml")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		Mnemonics:   v.GetString("MNEMONICS"),
		Wallet:      v.GetString("WALLET"),
		Apikey:      v.GetString("APIKEY"),
		Webhook:     v.GetString("WEBHOOK"),
		Secret:      v.GetString("SECRET"),
		LogLevel:    v.GetString("LOG_LEVEL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Mnemonics == "" {
		return nil, fmt.Errorf("MNEMONICS is required")
	}

	// 扫描器配置单独一个 TOML 文件
	sv := viper.New()
	sv.SetConfigFile(v.GetString("SCANNER_CONFIG"))
	sv.SetConfigType("toml")
	if err := sv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read scanner config: %w", err)
	}
	if err := sv.Unmarshal(&cfg.Scanner); err != nil {
		return nil, fmt.Errorf("parse scanner config: %w", err)
	}

	if err := cfg.Scanner.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s *ScannerConfig) validate() error {
	seenName := make(map[string]bool, len(s.Chains))
	seenAdmin := make(map[string]bool, len(s.Chains))
	for i := range s.Chains {
		c := &s.Chains[i]
		if c.ChainName == "" {
			return fmt.Errorf("chains[%d]: chain_name is required", i)
		}
		if seenName[c.ChainName] {
			return fmt.Errorf("duplicate chain_name %q", c.ChainName)
		}
		seenName[c.ChainName] = true

		if c.Rpc == "" {
			return fmt.Errorf("chain %s: rpc is required", c.ChainName)
		}
		if c.Admin == "" {
			return fmt.Errorf("chain %s: admin key is required", c.ChainName)
		}
		// 每条链独立的管理私钥，跨链复用直接拒绝
		if seenAdmin[c.Admin] {
			return fmt.Errorf("chain %s: admin key reused across chains", c.ChainName)
		}
		seenAdmin[c.Admin] = true

		if c.Latency <= 0 {
			c.Latency = 6
		}
		if c.Commission < 0 || c.Commission > 100 {
			return fmt.Errorf("chain %s: commission must be 0-100", c.ChainName)
		}
		if _, err := c.TokenEntries(); err != nil {
			return fmt.Errorf("chain %s: %w", c.ChainName, err)
		}
	}
	return nil
}
