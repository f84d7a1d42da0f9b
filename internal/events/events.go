package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
)

// Event 引擎对外发布的事件（只读，发布后不再修改）
type Event interface {
	EventName() string
	EventTime() time.Time
}

// RoundObservedEvent 决策循环处理了一轮结果
type RoundObservedEvent struct {
	Outcome   domain.Outcome
	LowRun    int
	State     domain.SessionState
	Timestamp time.Time
}

// TriggerFiredEvent 触发（gatilho）
type TriggerFiredEvent struct {
	Outcomes  []domain.Outcome
	Level     domain.SafetyLevel
	Skipped   string // 非空表示未开会话的原因（暂停 / 熔断）
	Timestamp time.Time
}

// SessionStartedEvent 会话开始（检查点 1 之后）
type SessionStartedEvent struct {
	SessionID   string
	Level       domain.SafetyLevel
	SaldoInicio decimal.Decimal
	Bankroll    decimal.Decimal
	Reserve     decimal.Decimal
	Timestamp   time.Time
}

// BetPlacedEvent 一个槽位的下注结果
type BetPlacedEvent struct {
	SessionID string
	Attempt   int
	Slot      int
	Role      domain.SlotRole
	Amount    decimal.Decimal
	Target    decimal.Decimal
	Accepted  bool
	Confirmed bool
	Elapsed   time.Duration
	Error     string
	Timestamp time.Time
}

// AttemptSettledEvent 一次尝试结算
type AttemptSettledEvent struct {
	SessionID string
	Attempt   int
	Outcome   domain.Outcome
	Scenario  domain.Scenario
	Action    domain.Action
	Timestamp time.Time
}

// SessionFinishedEvent 会话结束（检查点 2 之后），包含储备与加速的更新结果
type SessionFinishedEvent struct {
	SessionID       string
	Level           domain.SafetyLevel
	Outcome         domain.SessionOutcome
	Attempts        int
	ReachedTerminal bool
	SaldoInicio     decimal.Decimal
	SaldoFim        decimal.Decimal
	PL              decimal.Decimal
	TotalStaked     decimal.Decimal
	MetaBatida      bool
	Pagamento       decimal.Decimal
	Emprestimo      decimal.Decimal
	ReserveAfter    decimal.Decimal
	NextLevel       domain.SafetyLevel
	Timestamp       time.Time
}

// SessionAbortedEvent 会话被中止并重置（余额不可读 / 超时等）
type SessionAbortedEvent struct {
	SessionID string
	Attempt   int
	Reason    string
	Timestamp time.Time
}

// AnomalyEvent 长时间没有结果
type AnomalyEvent struct {
	Silence   time.Duration
	Refreshed bool
	Error     string
	Timestamp time.Time
}

// CommandAppliedEvent 外部命令已执行
type CommandAppliedEvent struct {
	Seq       uint64
	Command   string
	Params    map[string]string
	Result    string
	Error     string
	Timestamp time.Time
}

// PauseChangedEvent 暂停 / 恢复
type PauseChangedEvent struct {
	Paused    bool
	Reason    string
	Timestamp time.Time
}

func (e RoundObservedEvent) EventName() string { return "round_observed" }
func (e TriggerFiredEvent) EventName() string { return "trigger_fired" }
func (e SessionStartedEvent) EventName() string { return "session_started" }
func (e BetPlacedEvent) EventName() string { return "bet_placed" }
func (e AttemptSettledEvent) EventName() string { return "attempt_settled" }
func (e SessionFinishedEvent) EventName() string { return "session_finished" }
func (e SessionAbortedEvent) EventName() string { return "session_aborted" }
func (e AnomalyEvent) EventName() string { return "anomaly" }
func (e CommandAppliedEvent) EventName() string { return "command_applied" }
func (e PauseChangedEvent) EventName() string { return "pause_changed" }

func (e RoundObservedEvent) EventTime() time.Time { return e.Timestamp }
func (e TriggerFiredEvent) EventTime() time.Time { return e.Timestamp }
func (e SessionStartedEvent) EventTime() time.Time { return e.Timestamp }
func (e BetPlacedEvent) EventTime() time.Time { return e.Timestamp }
func (e AttemptSettledEvent) EventTime() time.Time { return e.Timestamp }
func (e SessionFinishedEvent) EventTime() time.Time { return e.Timestamp }
func (e SessionAbortedEvent) EventTime() time.Time { return e.Timestamp }
func (e AnomalyEvent) EventTime() time.Time { return e.Timestamp }
func (e CommandAppliedEvent) EventTime() time.Time { return e.Timestamp }
func (e PauseChangedEvent) EventTime() time.Time { return e.Timestamp }
