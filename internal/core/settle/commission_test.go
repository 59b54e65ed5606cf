package settle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommission(t *testing.T) {
	cfg := CommissionCfg{Pct: 5, Min: 50, Max: 200}

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"正常按比例", 10000, 200}, // 5% = 500 -> 封顶 200
		{"落在区间内", 2000, 100},  // 5% = 100
		{"触发下限", 1000, 50},    // 5% = 50
		{"小额也收下限", 100, 50},   // 5% = 5 -> 抬到 50
		{"下限吃掉整笔", 40, 50},    // 佣金 > 金额，调用方走零结算
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Commission(tt.amount, cfg))
		})
	}
}

func TestCommissionZeroRate(t *testing.T) {
	assert.EqualValues(t, 0, Commission(10000, CommissionCfg{Pct: 0, Min: 50, Max: 200}))
}

func TestCommissionNoMax(t *testing.T) {
	// Max = 0 表示不封顶
	assert.EqualValues(t, 500, Commission(10000, CommissionCfg{Pct: 5, Min: 10}))
}

// 结算金额恒等式: settled = amount - clamp(amount*pct/100, min, max)
func TestCommissionClampProperty(t *testing.T) {
	cfg := CommissionCfg{Pct: 5, Min: 50, Max: 200}
	for amount := int64(1); amount < 100000; amount += 777 {
		c := Commission(amount, cfg)

		raw := amount * cfg.Pct / 100
		expect := raw
		if expect > cfg.Max {
			expect = cfg.Max
		}
		if expect < cfg.Min {
			expect = cfg.Min
		}
		assert.Equal(t, expect, c, "amount=%d", amount)
	}
}
