package ethereum

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// 金额统一按"分"记账（两位小数），链上按代币自己的精度
// USDT/USDC 通常 6 位，测试代币可能 18 位

// UnitsToCents 链上最小单位 -> 分，向下取整（不足一分的尘埃直接舍掉）
// 超出 int64 范围按 0 处理，调用方会丢弃
func UnitsToCents(units *big.Int, decimals uint8) int64 {
	if units == nil || units.Sign() <= 0 {
		return 0
	}

	res := new(big.Int)
	if decimals > 2 {
		res.Div(units, pow10(int(decimals)-2))
	} else {
		res.Mul(units, pow10(2-int(decimals)))
	}

	if !res.IsInt64() {
		return 0
	}
	return res.Int64()
}

// CentsToUnits 分 -> 链上最小单位
func CentsToUnits(cents int64, decimals uint8) *big.Int {
	v := big.NewInt(cents)
	if decimals > 2 {
		return v.Mul(v, pow10(int(decimals)-2))
	}
	return v.Div(v, pow10(2-int(decimals)))
}

// UnitsToDecimal 日志展示用
func UnitsToDecimal(units *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(units, -int32(decimals))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
