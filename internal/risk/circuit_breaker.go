package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCircuitBreakerOpen 断路器已打开，禁止开始新会话。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 下注执行连续失败上限
	MaxConsecutiveErrors int64
	// DailyLossLimit 当日最大亏损（正数）。达到或超过时熔断
	DailyLossLimit decimal.Decimal
}

// CircuitBreaker 连续错误走原子快路径；当日盈亏低频更新，用互斥锁。
// 只在会话之间检查，进行中的会话不会被打断。
type CircuitBreaker struct {
	halted            atomic.Bool
	reason            atomic.Value // string
	consecutiveErrors atomic.Int64
	maxErrors         atomic.Int64

	mu        sync.Mutex
	dayKey    int
	dailyPnl  decimal.Decimal
	lossLimit decimal.Decimal
	now       func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{now: time.Now}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxErrors.Store(cfg.MaxConsecutiveErrors)
	cb.mu.Lock()
	cb.lossLimit = cfg.DailyLossLimit
	cb.mu.Unlock()
}

// Halt 手动熔断
func (cb *CircuitBreaker) Halt(reason string) {
	if cb == nil {
		return
	}
	cb.reason.Store(reason)
	cb.halted.Store(true)
}

// Resume 手动恢复（清空连续错误计数）
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.reason.Store("")
	cb.consecutiveErrors.Store(0)
}

// Halted 是否已熔断
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}

// Reason 熔断原因
func (cb *CircuitBreaker) Reason() string {
	if cb == nil {
		return ""
	}
	s, _ := cb.reason.Load().(string)
	return s
}

// AllowTrading 是否允许开始新会话
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	if maxErr := cb.maxErrors.Load(); maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.Halt(fmt.Sprintf("连续下注失败 %d 次", cb.consecutiveErrors.Load()))
		return ErrCircuitBreakerOpen
	}

	cb.mu.Lock()
	cb.rollDayLocked()
	limit := cb.lossLimit
	pnl := cb.dailyPnl
	cb.mu.Unlock()
	if limit.IsPositive() && pnl.LessThanOrEqual(limit.Neg()) {
		cb.Halt(fmt.Sprintf("当日亏损 %s 达到上限 %s", pnl.StringFixed(2), limit.StringFixed(2)))
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnSuccess 一次下注成功后清空连续错误计数
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 一次下注失败后累计
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// ConsecutiveErrors 当前连续错误数
func (cb *CircuitBreaker) ConsecutiveErrors() int64 {
	if cb == nil {
		return 0
	}
	return cb.consecutiveErrors.Load()
}

// AddPnL 会话结束后累加当日盈亏
func (cb *CircuitBreaker) AddPnL(delta decimal.Decimal) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollDayLocked()
	cb.dailyPnl = cb.dailyPnl.Add(delta)
}

// DailyPnL 当日盈亏
func (cb *CircuitBreaker) DailyPnL() decimal.Decimal {
	if cb == nil {
		return decimal.Zero
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollDayLocked()
	return cb.dailyPnl
}

func (cb *CircuitBreaker) rollDayLocked() {
	n := cb.now()
	key := n.Year()*10000 + int(n.Month())*100 + n.Day()
	if key != cb.dayKey {
		cb.dayKey = key
		cb.dailyPnl = decimal.Zero
	}
}
