package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/events"
	"github.com/betbot/gocrash/internal/martingale"
	"github.com/betbot/gocrash/internal/metrics"
)

const (
	pauseManual = "pausado manualmente"
	pauseBust   = "bust"
)

func (o *Orchestrator) pauseReason() string {
	switch {
	case o.manualPause:
		return pauseManual
	case o.compound.Bust():
		return pauseBust
	}
	return ""
}

// blockReason 非空表示不能开始新会话
func (o *Orchestrator) blockReason() string {
	if r := o.pauseReason(); r != "" {
		return r
	}
	if err := o.breaker.AllowTrading(); err != nil {
		return fmt.Sprintf("%v: %s", err, o.breaker.Reason())
	}
	return ""
}

// resumeIfFavorable BUST 暂停在行情窗口转为有利后自动解除；手动暂停只能由 retomar 解除
func (o *Orchestrator) resumeIfFavorable() {
	if !o.compound.Bust() || o.manualPause {
		return
	}
	if !o.regime.AllowResume() {
		return
	}
	stats := o.regime.Stats()
	o.compound.LimparBust()
	log.Infof("▶️ 行情恢复 %s，解除 BUST 暂停", stats)
	o.publish(events.PauseChangedEvent{Paused: false, Reason: "regime " + stats.String(), Timestamp: o.now()})
	o.persist()
}

// startSession 触发后：检查点 1 读余额，开始会话并下第一注
func (o *Orchestrator) startSession(ctx context.Context, trig *martingale.Trigger) {
	metrics.TriggersFired.Add(1)
	level := o.accel.NextLevel()
	ev := events.TriggerFiredEvent{
		Outcomes:  append([]domain.Outcome(nil), trig.Outcomes...),
		Level:     level,
		Timestamp: o.now(),
	}

	if reason := o.blockReason(); reason != "" {
		metrics.TriggersSkipped.Add(1)
		ev.Skipped = reason
		o.publish(ev)
		log.Infof("⏸️ 触发已忽略: %s", reason)
		return
	}
	o.publish(ev)

	saldo, err := o.readBalance(ctx)
	if err != nil {
		log.Errorf("❌ 检查点 1 读取余额失败，放弃本次触发: %v", err)
		o.trigger.Reset()
		o.publish(events.SessionAbortedEvent{Reason: err.Error(), Timestamp: o.now()})
		metrics.SessionsAborted.Add(1)
		return
	}
	o.sessao.SaldoAtual = saldo

	reserva := o.reserve.Reserva()
	if !o.compound.BancaParaApostas(saldo.Sub(reserva)).IsPositive() {
		metrics.TriggersSkipped.Add(1)
		log.Warnf("⚠️ 运营资金不足: saldo=%s reserva=%s", saldo.StringFixed(2), reserva.StringFixed(2))
		return
	}

	dec, err := o.session.Start(trig, level, saldo, reserva)
	if err != nil {
		metrics.TriggersSkipped.Add(1)
		log.Errorf("❌ 会话无法开始: %v", err)
		o.session.Reset()
		return
	}
	metrics.SessionsStarted.Add(1)
	o.sessao.NivelSeguranca = level
	o.publish(events.SessionStartedEvent{
		SessionID:   o.session.ID(),
		Level:       level,
		SaldoInicio: saldo,
		Bankroll:    saldo.Sub(reserva),
		Reserve:     reserva,
		Timestamp:   o.now(),
	})
	o.placeBets(ctx, dec.Plan)
}

// placeBets 同步下注，结果在下一个结果到达前确定
func (o *Orchestrator) placeBets(ctx context.Context, plan *domain.AttemptPlan) {
	if plan == nil {
		return
	}
	for _, sl := range plan.Slots {
		rcpt, err := o.deps.Actuator.PlaceBet(ctx, sl.Stake, sl.Target, sl.Slot)
		ok := err == nil && rcpt.Accepted
		o.session.MarkPlaced(sl.Slot, ok)

		ev := events.BetPlacedEvent{
			SessionID: o.session.ID(),
			Attempt:   plan.Attempt,
			Slot:      sl.Slot,
			Role:      sl.Role,
			Amount:    sl.Stake,
			Target:    sl.Target,
			Accepted:  rcpt.Accepted,
			Confirmed: rcpt.Confirmed,
			Elapsed:   rcpt.Elapsed,
			Timestamp: o.now(),
		}
		if ok {
			metrics.BetsPlaced.Add(1)
			o.breaker.OnSuccess()
			log.Infof("💰 T%d S%d 下注 %s @ %sx (%s)", plan.Attempt, sl.Slot,
				sl.Stake.StringFixed(2), sl.Target.StringFixed(2), rcpt.Elapsed)
		} else {
			metrics.BetsFailed.Add(1)
			o.breaker.OnError()
			if err == nil {
				err = fmt.Errorf("not accepted")
			}
			err = fmt.Errorf("%w: T%d S%d: %v", domain.ErrBetPlacementFailure, plan.Attempt, sl.Slot, err)
			ev.Error = err.Error()
			log.Errorf("❌ %v", err)
		}
		o.publish(ev)
	}
}

// settle 用结果结算当前尝试
func (o *Orchestrator) settle(ctx context.Context, out domain.Outcome) {
	attempt := o.session.Attempt()
	dec, err := o.session.Process(out)
	if err != nil {
		log.Errorf("❌ 结算失败: %v", err)
		o.abortSession(ctx, err.Error())
		return
	}
	o.publish(events.AttemptSettledEvent{
		SessionID: o.session.ID(),
		Attempt:   attempt,
		Outcome:   out,
		Scenario:  dec.Scenario,
		Action:    dec.Action,
		Timestamp: o.now(),
	})

	switch dec.Action {
	case domain.ActionApostar:
		o.placeBets(ctx, dec.Plan)
	case domain.ActionFinalizar, domain.ActionParar:
		o.finalize(ctx, dec.Scenario)
	}
}

// finalize 检查点 2 读余额，计算盈亏并更新储备 / 加速 / 统计
func (o *Orchestrator) finalize(ctx context.Context, scenario domain.Scenario) {
	saldoFim, err := o.readBalance(ctx)
	if err != nil {
		log.Errorf("❌ 检查点 2 读取余额失败: %v", err)
		o.abortSession(ctx, err.Error())
		return
	}
	res, err := o.session.Finalize(saldoFim)
	if err != nil {
		log.Errorf("❌ 会话结束失败: %v", err)
		o.abortSession(ctx, err.Error())
		return
	}
	o.applyResult(res, scenario)
}

func (o *Orchestrator) applyResult(res martingale.Result, scenario domain.Scenario) {
	rr := o.reserve.RegistrarResultado(res.PL)
	o.compound.RegistrarSessao(res.Outcome, res.PL, rr.Meta)
	o.accel.RegistrarSessao(res.Level, res.ReachedTerminal, res.SaldoFim)
	emp := o.reserve.VerificarEmprestimo(o.accel.GatilhosSinceWorstCase(), res.SaldoFim, o.accel.BancaPico())
	if emp != nil {
		o.accel.MarcarEmprestimo()
	}
	o.breaker.AddPnL(res.PL)

	o.sessao.SaldoAtual = res.SaldoFim
	switch res.Outcome {
	case domain.OutcomeWin:
		o.sessao.SessoesWin++
		metrics.SessionsWon.Add(1)
	case domain.OutcomeParar:
		o.sessao.SessoesLoss++
		metrics.SessionsStopped.Add(1)
	case domain.OutcomeBust:
		o.sessao.SessoesLoss++
		metrics.SessionsBusted.Add(1)
	}
	o.sessao.HistoricoApostas = appendHistory(o.sessao.HistoricoApostas, HistoryEntry{
		SessionID:   res.SessionID,
		Level:       res.Level,
		Outcome:     res.Outcome,
		Scenario:    scenario,
		Attempts:    res.Attempts,
		TotalStaked: res.TotalStaked,
		PL:          res.PL,
		SaldoFim:    res.SaldoFim,
		Reserva:     o.reserve.Reserva(),
		FinishedAt:  res.FinishedAt,
	}, o.opts.HistoryCap, o.opts.HistoryKeep)

	o.session.Reset()
	o.trigger.Reset()
	o.sessao.NivelSeguranca = o.accel.NextLevel()
	o.persist()

	ev := events.SessionFinishedEvent{
		SessionID:       res.SessionID,
		Level:           res.Level,
		Outcome:         res.Outcome,
		Attempts:        res.Attempts,
		ReachedTerminal: res.ReachedTerminal,
		SaldoInicio:     res.SaldoInicio,
		SaldoFim:        res.SaldoFim,
		PL:              res.PL,
		TotalStaked:     res.TotalStaked,
		MetaBatida:      rr.Meta != nil,
		Pagamento:       decimal.Zero,
		Emprestimo:      decimal.Zero,
		ReserveAfter:    o.reserve.Reserva(),
		NextLevel:       o.accel.NextLevel(),
		Timestamp:       o.now(),
	}
	if rr.Pagamento != nil {
		ev.Pagamento = rr.Pagamento.Valor
	}
	if emp != nil {
		ev.Emprestimo = emp.Valor
	}
	o.publish(ev)

	if res.Outcome == domain.OutcomeBust {
		log.Warnf("🛑 BUST，暂停新会话直到行情恢复或收到 retomar")
		o.publish(events.PauseChangedEvent{Paused: true, Reason: pauseBust, Timestamp: o.now()})
	}
	log.Infof("📊 WIN=%d LOSS=%d 储备=%s 下一等级=%s (%s)",
		o.sessao.SessoesWin, o.sessao.SessoesLoss, o.reserve.Reserva().StringFixed(2),
		o.accel.NextLevel(), o.accel.Position())
}

// abortSession 丢弃进行中的会话，不更新储备和加速
func (o *Orchestrator) abortSession(_ context.Context, reason string) {
	if !o.session.Active() {
		return
	}
	id, attempt := o.session.ID(), o.session.Attempt()
	o.session.Reset()
	o.trigger.Reset()
	metrics.SessionsAborted.Add(1)
	log.Warnf("🧹 会话已中止并重置: id=%s T%d 原因=%s", id, attempt, reason)
	o.publish(events.SessionAbortedEvent{SessionID: id, Attempt: attempt, Reason: reason, Timestamp: o.now()})
}
