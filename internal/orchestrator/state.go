package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/acceleration"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/metrics"
	"github.com/betbot/gocrash/internal/reserve"
	"github.com/betbot/gocrash/pkg/persistence"
)

// HistoryEntry historico_apostas 中的一条会话记录
type HistoryEntry struct {
	SessionID   string                `json:"session_id"`
	Level       domain.SafetyLevel    `json:"level"`
	Outcome     domain.SessionOutcome `json:"outcome"`
	Scenario    domain.Scenario       `json:"scenario,omitempty"`
	Attempts    int                   `json:"attempts"`
	TotalStaked decimal.Decimal       `json:"total_staked"`
	PL          decimal.Decimal       `json:"pl"`
	SaldoFim    decimal.Decimal       `json:"saldo_fim"`
	Reserva     decimal.Decimal       `json:"reserva"`
	FinishedAt  time.Time             `json:"finished_at"`
}

// SessaoState 运行统计快照（sessao）
type SessaoState struct {
	SessaoID         string             `json:"sessao_id"`
	InicioTimestamp  time.Time          `json:"inicio_timestamp"`
	DepositoInicial  decimal.Decimal    `json:"deposito_inicial"`
	SaldoAtual       decimal.Decimal    `json:"saldo_atual"`
	TotalSaques      decimal.Decimal    `json:"total_saques"`
	NivelSeguranca   domain.SafetyLevel `json:"nivel_seguranca"`
	NivelFixo        domain.SafetyLevel `json:"nivel_fixo,omitempty"` // 非 0 表示关闭轮换
	SessoesWin       int                `json:"sessoes_win"`
	SessoesLoss      int                `json:"sessoes_loss"`
	TotalRodadas     int                `json:"total_rodadas"`
	Pausado          bool               `json:"pausado"`
	HistoricoApostas []HistoryEntry     `json:"historico_apostas"`
}

func (s SessaoState) clone() SessaoState {
	s.HistoricoApostas = append([]HistoryEntry(nil), s.HistoricoApostas...)
	return s
}

// persistedState 每次会话结束后整体提交的状态文件组
type persistedState struct {
	Sessao     SessaoState           `persistence:"sessao"`
	Reserva    reserve.State         `persistence:"reserva"`
	Aceleracao acceleration.State    `persistence:"aceleracao"`
	Compound   reserve.CompoundState `persistence:"compound"`
}

func newSessaoState(saldo decimal.Decimal, now time.Time) SessaoState {
	return SessaoState{
		SessaoID:        uuid.NewString(),
		InicioTimestamp: now,
		DepositoInicial: saldo,
		SaldoAtual:      saldo,
	}
}

// appendHistory 超过上限时只保留最近 keep 条
func appendHistory(h []HistoryEntry, e HistoryEntry, limit, keep int) []HistoryEntry {
	h = append(h, e)
	if limit > 0 && len(h) > limit {
		if keep <= 0 || keep > limit {
			keep = limit
		}
		h = append([]HistoryEntry(nil), h[len(h)-keep:]...)
	}
	return h
}

// persist 原子提交 sessao / reserva / aceleracao / compound
func (o *Orchestrator) persist() {
	if o.deps.Persistence == nil {
		return
	}
	st := persistedState{
		Sessao:     o.sessao.clone(),
		Reserva:    o.reserve.State(),
		Aceleracao: o.accel.State(),
		Compound:   o.compound.State(),
	}
	seq, err := persistence.SaveFields(&st, o.opts.StateID, o.deps.Persistence)
	if err != nil {
		metrics.SnapshotErrors.Add(1)
		log.Errorf("❌ 保存状态失败: %v", err)
		return
	}
	metrics.SnapshotSaves.Add(1)
	o.commitSeq = seq
	log.Debugf("💾 状态已提交 seq=%d", seq)
}

// restore 从最近一次提交恢复；没有提交记录时返回 false
func (o *Orchestrator) restore() (bool, error) {
	if o.deps.Persistence == nil {
		return false, nil
	}
	var st persistedState
	seq, err := persistence.LoadFields(&st, o.opts.StateID, o.deps.Persistence)
	if err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return false, nil
		}
		return false, errors.Wrap(err, "load state")
	}
	rm, err := reserve.NewManager(o.opts.Reserve, st.Reserva.BancaBase)
	if err != nil {
		return false, err
	}
	if err := rm.Restore(st.Reserva); err != nil {
		return false, err
	}
	if err := o.accel.Restore(st.Aceleracao); err != nil {
		return false, errors.Wrap(err, "restore aceleracao")
	}
	if st.Sessao.NivelFixo != 0 {
		if err := o.accel.SetFixedLevel(st.Sessao.NivelFixo); err != nil {
			return false, err
		}
	}
	o.reserve = rm
	o.compound.Restore(st.Compound)
	o.sessao = st.Sessao
	o.manualPause = st.Sessao.Pausado
	o.commitSeq = seq
	log.Infof("🔄 状态已恢复 seq=%d: 会话统计 WIN=%d LOSS=%d, 储备=%s, 模式=%s",
		seq, st.Sessao.SessoesWin, st.Sessao.SessoesLoss,
		st.Reserva.ReservaTotal.StringFixed(2), o.accel.Position())
	return true, nil
}
