package orchestrator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/acceleration"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/martingale"
	"github.com/betbot/gocrash/internal/metrics"
	"github.com/betbot/gocrash/internal/regime"
	"github.com/betbot/gocrash/internal/reserve"
)

const recentOutcomes = 20

// BreakerView 熔断状态
type BreakerView struct {
	Halted            bool            `json:"halted"`
	Reason            string          `json:"reason,omitempty"`
	ConsecutiveErrors int64           `json:"consecutive_errors"`
	DailyPnL          decimal.Decimal `json:"daily_pnl"`
}

// Snapshot 引擎状态的只读副本，供控制面、面板、通知使用。
// 发布后不会再被修改。
type Snapshot struct {
	UpdatedAt        time.Time             `json:"updated_at"`
	State            domain.SessionState   `json:"state"`
	Session          martingale.View       `json:"session"`
	LowRun           int                   `json:"low_run"`
	TriggerSize      int                   `json:"trigger_size"`
	NextLevel        domain.SafetyLevel    `json:"next_level"`
	PatternPosition  string                `json:"pattern_position"`
	Rotation         bool                  `json:"rotation"`
	Reserve          reserve.State         `json:"reserve"`
	MetaValor        decimal.Decimal       `json:"meta_valor"`
	MetaProgresso    decimal.Decimal       `json:"meta_progresso"`
	BancaOperacional decimal.Decimal       `json:"banca_operacional"`
	Acceleration     acceleration.State    `json:"acceleration"`
	Compound         reserve.CompoundState `json:"compound"`
	WinRate          float64               `json:"win_rate"`
	Regime           regime.Stats          `json:"regime"`
	Paused           bool                  `json:"paused"`
	PauseReason      string                `json:"pause_reason,omitempty"`
	Breaker          BreakerView           `json:"breaker"`
	Sessao           SessaoState           `json:"sessao"`
	RecentOutcomes   []domain.Outcome      `json:"recent_outcomes"`
	CommitSeq        uint64                `json:"commit_seq"`
	PendingCommands  int                   `json:"pending_commands"`
}

// Snapshot 返回最近一次发布的状态
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// Subscribe 订阅状态更新。慢的订阅者只会收到最新一份。
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subsMu.Unlock()

	cancel := func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// refreshSnapshot 只在决策协程内调用
func (o *Orchestrator) refreshSnapshot() {
	rs := o.reserve.State()
	snap := Snapshot{
		UpdatedAt:        o.now(),
		State:            o.session.State(),
		Session:          o.session.View(),
		LowRun:           o.trigger.Run(),
		TriggerSize:      o.trigger.Size(),
		NextLevel:        o.accel.NextLevel(),
		PatternPosition:  o.accel.Position(),
		Rotation:         o.accel.Enabled(),
		Reserve:          rs,
		MetaValor:        o.reserve.MetaValor(),
		MetaProgresso:    o.reserve.ProgressoPct(),
		BancaOperacional: o.reserve.BancaOperacional(o.sessao.SaldoAtual),
		Acceleration:     o.accel.State(),
		Compound:         o.compound.State(),
		WinRate:          o.compound.WinRate(),
		Regime:           o.regime.Stats(),
		Paused:           o.manualPause || o.compound.Bust(),
		PauseReason:      o.pauseReason(),
		Breaker: BreakerView{
			Halted:            o.breaker.Halted(),
			Reason:            o.breaker.Reason(),
			ConsecutiveErrors: o.breaker.ConsecutiveErrors(),
			DailyPnL:          o.breaker.DailyPnL(),
		},
		Sessao:         o.sessao.clone(),
		RecentOutcomes: append([]domain.Outcome(nil), o.recent...),
		CommitSeq:      o.commitSeq,
	}
	if q, ok := o.deps.Commands.(interface{ PendingLen() int }); ok && q != nil {
		snap.PendingCommands = q.PendingLen()
	}

	o.snapMu.Lock()
	o.snap = snap
	o.snapMu.Unlock()

	metrics.Bankroll.Set(snap.BancaOperacional.StringFixed(2))
	metrics.Reserve.Set(rs.ReservaTotal.StringFixed(2))

	o.subsMu.Lock()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
			// 丢弃旧值，换成最新
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	o.subsMu.Unlock()
}
