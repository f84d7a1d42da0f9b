package paper

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/ports"
)

// Mirror 真实结果 + 纸面下注（dry-run）：结果来自外部来源，下注和余额只在纸面桌上。
type Mirror struct {
	inner ports.EventSource
	table *Table
}

var (
	_ ports.EventSource = (*Mirror)(nil)
	_ ports.Refresher   = (*Mirror)(nil)
)

// NewMirrorSource 包装外部来源
func NewMirrorSource(inner ports.EventSource, table *Table) *Mirror {
	return &Mirror{inner: inner, table: table}
}

// NextOutcome 取外部结果并先在纸面桌上结算
func (m *Mirror) NextOutcome(ctx context.Context) (domain.Outcome, error) {
	o, err := m.inner.NextOutcome(ctx)
	if err != nil {
		return domain.Outcome{}, err
	}
	if payout := m.table.Settle(o); payout.IsPositive() {
		log.Debugf("[DRY-RUN] %s 派彩 %s", o.Multiplier.StringFixed(2), payout.StringFixed(2))
	}
	return o, nil
}

// ReadBalance 纸面余额
func (m *Mirror) ReadBalance(ctx context.Context) (decimal.Decimal, bool, error) {
	return m.table.ReadBalance(ctx)
}

// Refresh 转发给外部来源
func (m *Mirror) Refresh(ctx context.Context) error {
	if r, ok := m.inner.(ports.Refresher); ok {
		return r.Refresh(ctx)
	}
	return nil
}
