package martingale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/domain"
)

var log = logrus.WithField("component", "martingale")

// Decision 会话对一次输入给出的决策
type Decision struct {
	Action   domain.Action
	Scenario domain.Scenario
	// Plan 在 Action=apostar 时为下一次要执行的计划
	Plan *domain.AttemptPlan
	// Outcome 在 finalizar/parar 时为会话结束方式
	Outcome domain.SessionOutcome
	Info    string
}

// AttemptRecord 一次尝试的执行与结果
type AttemptRecord struct {
	Plan      domain.AttemptPlan `json:"plan"`
	Placed    domain.Placement   `json:"placed"`
	Outcome   domain.Outcome     `json:"outcome"`
	Scenario  domain.Scenario    `json:"scenario"`
	Staked    decimal.Decimal    `json:"staked"`
	SettledAt time.Time          `json:"settled_at"`
}

// Result 会话最终结果。PL 只来自两次余额检查点的差值。
type Result struct {
	SessionID       string                `json:"session_id"`
	Level           domain.SafetyLevel    `json:"level"`
	Outcome         domain.SessionOutcome `json:"outcome"`
	Attempts        int                   `json:"attempts"`
	ReachedTerminal bool                  `json:"reached_terminal"`
	Bankroll        decimal.Decimal       `json:"bankroll"`
	SaldoInicio     decimal.Decimal       `json:"saldo_inicio"`
	SaldoFim        decimal.Decimal       `json:"saldo_fim"`
	PL              decimal.Decimal       `json:"pl"`
	TotalStaked     decimal.Decimal       `json:"total_staked"`
	AccumulatedLoss decimal.Decimal       `json:"accumulated_loss"`
	TriggerOutcomes []domain.Outcome      `json:"trigger_outcomes"`
	History         []AttemptRecord       `json:"history"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      time.Time             `json:"finished_at"`
}

// Session 马丁格尔会话状态机：
// AGUARDANDO_GATILHO -> EM_MARTINGALE(1..max) -> FINALIZADO。
// 非线程安全，只能由决策循环访问。
type Session struct {
	targets     domain.Targets
	triggerSize int
	now         func() time.Time

	id              string
	state           domain.SessionState
	level           domain.SafetyLevel
	attempt         int
	triggerOutcomes []domain.Outcome
	bankroll        decimal.Decimal
	saldoInicio     decimal.Decimal
	saldoFim        decimal.Decimal
	accumulatedLoss decimal.Decimal
	totalStaked     decimal.Decimal
	plan            *domain.AttemptPlan
	placed          domain.Placement
	history         []AttemptRecord
	ending          domain.SessionOutcome
	startedAt       time.Time
}

// NewSession 创建空闲会话
func NewSession(targets domain.Targets, triggerSize int) *Session {
	if triggerSize <= 0 {
		triggerSize = DefaultTriggerSize
	}
	s := &Session{
		targets:     targets,
		triggerSize: triggerSize,
		now:         time.Now,
	}
	s.Reset()
	return s
}

// SetTargets 仅在空闲时生效
func (s *Session) SetTargets(t domain.Targets) error {
	if s.state == domain.StateEmMartingale {
		return fmt.Errorf("%w: 会话进行中不能修改目标", domain.ErrInvalidState)
	}
	s.targets = t
	return nil
}

// Start 触发后进入 EM_MARTINGALE，saldo 为检查点 1 的余额。
// 运营资金 = saldo - reserve。
func (s *Session) Start(t *Trigger, level domain.SafetyLevel, saldo, reserve decimal.Decimal) (Decision, error) {
	if s.state != domain.StateAguardandoGatilho {
		return Decision{}, fmt.Errorf("%w: start in %s", domain.ErrInvalidState, s.state)
	}
	if err := ValidateTrigger(t, s.triggerSize); err != nil {
		return Decision{}, err
	}
	bankroll := saldo.Sub(reserve)
	plan, err := Plan(1, level, bankroll, s.targets)
	if err != nil {
		return Decision{}, err
	}

	s.id = uuid.NewString()
	s.state = domain.StateEmMartingale
	s.level = level
	s.attempt = 1
	s.triggerOutcomes = append([]domain.Outcome(nil), t.Outcomes...)
	s.bankroll = bankroll
	s.saldoInicio = saldo
	s.plan = &plan
	s.placed = domain.Placement{}
	s.startedAt = s.now()

	log.Infof("🎯 会话开始: id=%s level=%s saldo=%s banca=%s plan=%s",
		s.id, level, saldo.StringFixed(2), bankroll.StringFixed(2), plan)
	return Decision{Action: domain.ActionApostar, Plan: &plan, Info: "gatilho"}, nil
}

// MarkPlaced 记录下注执行结果（slot 从 1 开始）
func (s *Session) MarkPlaced(slot int, ok bool) {
	if s.state != domain.StateEmMartingale || slot < 1 || slot > len(s.placed) {
		return
	}
	s.placed[slot-1] = ok
}

// Process 用一个新结果结算当前尝试并给出下一步动作。
func (s *Session) Process(o domain.Outcome) (Decision, error) {
	if s.state != domain.StateEmMartingale || s.ending != "" {
		return Decision{Action: domain.ActionAguardar}, nil
	}
	plan := *s.plan
	scenario := Classify(plan, o, s.placed)

	staked := decimal.Zero
	for i, sl := range plan.Slots {
		if s.placed[i] {
			staked = staked.Add(sl.Stake)
		}
	}
	s.totalStaked = s.totalStaked.Add(staked)
	s.history = append(s.history, AttemptRecord{
		Plan:      plan,
		Placed:    s.placed,
		Outcome:   o,
		Scenario:  scenario,
		Staked:    staked,
		SettledAt: s.now(),
	})

	entry := log.WithFields(logrus.Fields{"session": s.id, "attempt": plan.Attempt, "outcome": o.String()})

	switch {
	case scenario == domain.ScenarioWin || scenario == domain.ScenarioA:
		entry.Infof("✅ T%d 命中 (%s)", plan.Attempt, scenario)
		return s.end(domain.OutcomeWin, scenario), nil

	case scenario == domain.ScenarioB && plan.Terminal():
		// 最后一次只有 defesa 命中：视为存活
		entry.Infof("🛡️ T%d defesa 命中，存活结束", plan.Attempt)
		return s.end(domain.OutcomeWin, scenario), nil

	case scenario == domain.ScenarioB:
		entry.Infof("⏸️ T%d 场景 B，主动停止", plan.Attempt)
		d := s.end(domain.OutcomeParar, scenario)
		d.Action = domain.ActionParar
		return d, nil

	case plan.Terminal():
		entry.Warnf("💥 T%d 失败，BUST", plan.Attempt)
		s.accumulatedLoss = s.accumulatedLoss.Add(staked)
		return s.end(domain.OutcomeBust, scenario), nil
	}

	// LOSS 或场景 C：升级到下一次
	s.accumulatedLoss = s.accumulatedLoss.Add(staked)
	next, err := Plan(plan.Attempt+1, s.level, s.bankroll, s.targets)
	if err != nil {
		return Decision{}, err
	}
	s.attempt = next.Attempt
	s.plan = &next
	s.placed = domain.Placement{}
	entry.Infof("📉 T%d 未命中 (%s)，下一次 %s", plan.Attempt, scenario, next)
	return Decision{Action: domain.ActionApostar, Scenario: scenario, Plan: &next}, nil
}

func (s *Session) end(outcome domain.SessionOutcome, scenario domain.Scenario) Decision {
	s.ending = outcome
	return Decision{Action: domain.ActionFinalizar, Scenario: scenario, Outcome: outcome}
}

// Finalize 检查点 2：用结束余额计算盈亏，进入 FINALIZADO。
func (s *Session) Finalize(saldoFim decimal.Decimal) (Result, error) {
	if s.state != domain.StateEmMartingale || s.ending == "" {
		return Result{}, fmt.Errorf("%w: finalize in %s", domain.ErrInvalidState, s.state)
	}
	s.saldoFim = saldoFim
	s.state = domain.StateFinalizado

	res := Result{
		SessionID:       s.id,
		Level:           s.level,
		Outcome:         s.ending,
		Attempts:        s.attempt,
		ReachedTerminal: s.attempt >= s.level.MaxAttempts(),
		Bankroll:        s.bankroll,
		SaldoInicio:     s.saldoInicio,
		SaldoFim:        saldoFim,
		PL:              saldoFim.Sub(s.saldoInicio),
		TotalStaked:     s.totalStaked,
		AccumulatedLoss: s.accumulatedLoss,
		TriggerOutcomes: append([]domain.Outcome(nil), s.triggerOutcomes...),
		History:         append([]AttemptRecord(nil), s.history...),
		StartedAt:       s.startedAt,
		FinishedAt:      s.now(),
	}
	log.Infof("🏁 会话结束: id=%s outcome=%s tentativas=%d pl=%s",
		res.SessionID, res.Outcome, res.Attempts, res.PL.StringFixed(2))
	return res, nil
}

// Reset 清空全部会话字段，回到 AGUARDANDO_GATILHO
func (s *Session) Reset() {
	s.id = ""
	s.state = domain.StateAguardandoGatilho
	s.level = 0
	s.attempt = 0
	s.triggerOutcomes = nil
	s.bankroll = decimal.Zero
	s.saldoInicio = decimal.Zero
	s.saldoFim = decimal.Zero
	s.accumulatedLoss = decimal.Zero
	s.totalStaked = decimal.Zero
	s.plan = nil
	s.placed = domain.Placement{}
	s.history = nil
	s.ending = ""
	s.startedAt = time.Time{}
}

// State 当前状态
func (s *Session) State() domain.SessionState { return s.state }

// Active 是否处于 EM_MARTINGALE
func (s *Session) Active() bool { return s.state == domain.StateEmMartingale }

// Ending 已决定结束但尚未读取结束余额
func (s *Session) Ending() bool { return s.state == domain.StateEmMartingale && s.ending != "" }

// ID 当前会话 id
func (s *Session) ID() string { return s.id }

// Attempt 当前尝试序号
func (s *Session) Attempt() int { return s.attempt }

// Level 当前会话等级
func (s *Session) Level() domain.SafetyLevel { return s.level }

// CurrentPlan 当前计划副本
func (s *Session) CurrentPlan() *domain.AttemptPlan {
	if s.plan == nil {
		return nil
	}
	p := *s.plan
	return &p
}

// View 会话的只读视图
type View struct {
	ID              string              `json:"id,omitempty"`
	State           domain.SessionState `json:"state"`
	Level           domain.SafetyLevel  `json:"level,omitempty"`
	Attempt         int                 `json:"attempt"`
	Bankroll        decimal.Decimal     `json:"bankroll"`
	SaldoInicio     decimal.Decimal     `json:"saldo_inicio"`
	AccumulatedLoss decimal.Decimal     `json:"accumulated_loss"`
	Plan            *domain.AttemptPlan `json:"plan,omitempty"`
	TriggerOutcomes []domain.Outcome    `json:"trigger_outcomes,omitempty"`
}

// View 返回不可变副本
func (s *Session) View() View {
	return View{
		ID:              s.id,
		State:           s.state,
		Level:           s.level,
		Attempt:         s.attempt,
		Bankroll:        s.bankroll,
		SaldoInicio:     s.saldoInicio,
		AccumulatedLoss: s.accumulatedLoss,
		Plan:            s.CurrentPlan(),
		TriggerOutcomes: append([]domain.Outcome(nil), s.triggerOutcomes...),
	}
}
