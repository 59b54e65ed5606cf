package ethereum

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitsToCents(t *testing.T) {
	tests := []struct {
		name     string
		units    *big.Int
		decimals uint8
		want     int64
	}{
		{"USDT 6位 10块钱", big.NewInt(10_000_000), 6, 1000},
		{"USDT 6位 尘埃向下取整", big.NewInt(10_009_999), 6, 1000},
		{"不足一分", big.NewInt(9_999), 6, 0},
		{"18位代币", new(big.Int).Mul(big.NewInt(15), pow10(17)), 18, 150}, // 1.5 token
		{"2位代币原样", big.NewInt(12345), 2, 12345},
		{"0位代币放大", big.NewInt(7), 0, 700},
		{"零", big.NewInt(0), 6, 0},
		{"nil", nil, 6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnitsToCents(tt.units, tt.decimals))
		})
	}
}

func TestCentsToUnits(t *testing.T) {
	assert.Equal(t, big.NewInt(10_000_000), CentsToUnits(1000, 6))
	assert.Equal(t, new(big.Int).Mul(big.NewInt(15), pow10(17)), CentsToUnits(150, 18))
	assert.Equal(t, big.NewInt(12345), CentsToUnits(12345, 2))
	assert.Equal(t, big.NewInt(7), CentsToUnits(700, 0))
}

// 往返: cents -> units -> cents 不丢钱
func TestUnitsRoundTrip(t *testing.T) {
	for _, decimals := range []uint8{2, 6, 18} {
		for _, cents := range []int64{1, 50, 999, 1000, 150000} {
			units := CentsToUnits(cents, decimals)
			assert.Equal(t, cents, UnitsToCents(units, decimals),
				"decimals=%d cents=%d", decimals, cents)
		}
	}
}

func TestUnitsToDecimal(t *testing.T) {
	d := UnitsToDecimal(big.NewInt(1_500_000), 6)
	assert.Equal(t, "1.5", d.String())
}
