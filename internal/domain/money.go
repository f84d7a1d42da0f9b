package domain

import "github.com/shopspring/decimal"

// MoneyPlaces 金额保留的小数位数
const MoneyPlaces int32 = 2

// Money 直接复用 decimal.Decimal，避免二进制浮点在几何序列上的累积误差。
type Money = decimal.Decimal

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// D 从字符串构造金额，解析失败会 panic，仅用于常量与测试。
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RoundMoney 四舍五入到分
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Pow2 返回 2^n
func Pow2(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(1) << uint(n))
}

// MinMoney 返回较小值
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxMoney 返回较大值
func MaxMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
