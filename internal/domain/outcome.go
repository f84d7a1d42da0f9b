package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome 一轮游戏的结果倍数（不可变）。
type Outcome struct {
	RoundID    string          `json:"round_id,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier"`
	At         time.Time       `json:"at"`
}

// NewOutcome 构造结果，倍数必须为正。
func NewOutcome(roundID string, multiplier decimal.Decimal, at time.Time) (Outcome, error) {
	if !multiplier.IsPositive() {
		return Outcome{}, fmt.Errorf("outcome multiplier must be positive, got %s", multiplier)
	}
	return Outcome{RoundID: roundID, Multiplier: multiplier, At: at}, nil
}

// Below 倍数是否严格小于阈值
func (o Outcome) Below(threshold decimal.Decimal) bool {
	return o.Multiplier.LessThan(threshold)
}

// Clears 倍数是否达到目标（>=）
func (o Outcome) Clears(target decimal.Decimal) bool {
	return o.Multiplier.GreaterThanOrEqual(target)
}

func (o Outcome) String() string {
	return o.Multiplier.StringFixed(2) + "x"
}
