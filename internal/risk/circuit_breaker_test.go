package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_ConsecutiveErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 2})
	assert.NoError(t, cb.AllowTrading())
	cb.OnError()
	cb.OnSuccess()
	cb.OnError()
	assert.NoError(t, cb.AllowTrading())
	cb.OnError()
	assert.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)
	assert.True(t, cb.Halted())
	assert.Contains(t, cb.Reason(), "连续下注失败")

	cb.Resume()
	assert.NoError(t, cb.AllowTrading())
	assert.Equal(t, int64(0), cb.ConsecutiveErrors())
}

func TestCircuitBreaker_DailyLossRollsOver(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossLimit: decimal.NewFromInt(100)})
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	cb.now = func() time.Time { return now }

	cb.AddPnL(decimal.NewFromInt(-60))
	assert.NoError(t, cb.AllowTrading())
	cb.AddPnL(decimal.NewFromInt(-40))
	assert.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)

	cb.Resume()
	now = now.Add(2 * time.Hour)
	assert.True(t, cb.DailyPnL().IsZero())
	assert.NoError(t, cb.AllowTrading())
}

func TestCircuitBreaker_NilSafe(t *testing.T) {
	var cb *CircuitBreaker
	assert.NoError(t, cb.AllowTrading())
	cb.OnError()
	cb.AddPnL(decimal.NewFromInt(1))
	assert.False(t, cb.Halted())
}
