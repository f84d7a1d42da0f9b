// Package paper 纸面桌：本地模拟余额与下注结算，供 paper / replay 模式和测试使用。
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/ports"
)

var log = logrus.WithField("component", "paper")

// ErrInsufficientBalance 余额不足以下注
var ErrInsufficientBalance = fmt.Errorf("paper: insufficient balance")

type pendingBet struct {
	slot   int
	amount decimal.Decimal
	target decimal.Decimal
}

// Table 纸面桌。下注立即扣款，Settle 时按结果倍数派彩。
type Table struct {
	mu      sync.Mutex
	balance decimal.Decimal
	pending []pendingBet
	reject  func(slot int) error
	settled int
}

var _ ports.BetActuator = (*Table)(nil)

// NewTable 以初始余额创建纸面桌
func NewTable(balance decimal.Decimal) *Table {
	return &Table{balance: balance}
}

// SetReject 设置拒单钩子（测试用），返回非空错误时该槽位下注失败
func (t *Table) SetReject(fn func(slot int) error) {
	t.mu.Lock()
	t.reject = fn
	t.mu.Unlock()
}

// PlaceBet 扣除下注金额并挂起到下一次 Settle
func (t *Table) PlaceBet(_ context.Context, amount, target decimal.Decimal, slot int) (ports.BetReceipt, error) {
	start := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reject != nil {
		if err := t.reject(slot); err != nil {
			return ports.BetReceipt{}, err
		}
	}
	if !amount.IsPositive() {
		return ports.BetReceipt{}, fmt.Errorf("paper: invalid amount %s", amount)
	}
	if t.balance.LessThan(amount) {
		return ports.BetReceipt{}, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientBalance, amount.StringFixed(2), t.balance.StringFixed(2))
	}
	t.balance = t.balance.Sub(amount)
	t.pending = append(t.pending, pendingBet{slot: slot, amount: amount, target: target})
	log.Debugf("📝 [PAPER] S%d 下注 %s @ %sx, 余额=%s", slot, amount.StringFixed(2), target.StringFixed(2), t.balance.StringFixed(2))
	return ports.BetReceipt{Accepted: true, Confirmed: true, Elapsed: time.Since(start)}, nil
}

// Settle 用一轮结果结算全部挂起的下注，返回派彩总额
func (t *Table) Settle(o domain.Outcome) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	payout := decimal.Zero
	for _, b := range t.pending {
		if o.Clears(b.target) {
			payout = payout.Add(b.amount.Mul(b.target))
		}
	}
	if len(t.pending) > 0 {
		t.settled++
		log.Debugf("📝 [PAPER] 结果 %s 派彩 %s", o, payout.StringFixed(2))
	}
	t.balance = t.balance.Add(payout)
	t.pending = t.pending[:0]
	return payout
}

// ReadBalance 纸面余额总是可读
func (t *Table) ReadBalance(context.Context) (decimal.Decimal, bool, error) {
	return t.Balance(), true, nil
}

// Balance 当前余额
func (t *Table) Balance() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Pending 挂起的下注数
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Settled 已结算的轮数（有下注的轮）
func (t *Table) Settled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settled
}
