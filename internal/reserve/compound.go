package reserve

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
)

// CompoundState 复利统计与 BUST 暂停标记
type CompoundState struct {
	TotalTriggers   int             `json:"total_triggers"`
	TotalWins       int             `json:"total_wins"`
	TotalLosses     int             `json:"total_losses"`
	CenariosB       int             `json:"cenarios_b"`
	TotalBusts      int             `json:"total_busts"`
	TotalReservado  decimal.Decimal `json:"total_reservado"`
	TotalCompounded decimal.Decimal `json:"total_compounded"`
	BustDetectado   bool            `json:"bust_detectado"`
	MotivoBust      string          `json:"motivo_bust,omitempty"`
	TimestampBust   *time.Time      `json:"timestamp_bust,omitempty"`
}

// CompoundManager 汇总每次会话的结果。
// BUST 后停止开新会话，直到显式恢复；储备不受影响。
type CompoundManager struct {
	state CompoundState
	now   func() time.Time
}

// NewCompoundManager 创建空统计
func NewCompoundManager() *CompoundManager {
	return &CompoundManager{now: time.Now}
}

// RegistrarSessao 记录会话结束方式与本次的目标划拨
func (c *CompoundManager) RegistrarSessao(outcome domain.SessionOutcome, pl decimal.Decimal, meta *Meta) {
	c.state.TotalTriggers++
	switch outcome {
	case domain.OutcomeWin:
		c.state.TotalWins++
	case domain.OutcomeParar:
		c.state.CenariosB++
		c.state.TotalLosses++
	case domain.OutcomeBust:
		now := c.now()
		c.state.TotalBusts++
		c.state.TotalLosses++
		c.state.BustDetectado = true
		c.state.MotivoBust = "BUST: perda " + pl.StringFixed(2)
		c.state.TimestampBust = &now
	}
	if meta != nil {
		c.state.TotalReservado = c.state.TotalReservado.Add(meta.ValorReserva)
		c.state.TotalCompounded = c.state.TotalCompounded.Add(meta.ValorCompound)
	}
}

// BancaParaApostas BUST 后返回 0
func (c *CompoundManager) BancaParaApostas(banca decimal.Decimal) decimal.Decimal {
	if c.state.BustDetectado {
		return decimal.Zero
	}
	return banca
}

// Bust 是否处于 BUST 暂停
func (c *CompoundManager) Bust() bool { return c.state.BustDetectado }

// LimparBust 恢复运行
func (c *CompoundManager) LimparBust() {
	c.state.BustDetectado = false
	c.state.MotivoBust = ""
	c.state.TimestampBust = nil
}

// WinRate 胜率（0~100）
func (c *CompoundManager) WinRate() float64 {
	if c.state.TotalTriggers == 0 {
		return 0
	}
	return float64(c.state.TotalWins) * 100 / float64(c.state.TotalTriggers)
}

// State 返回副本
func (c *CompoundManager) State() CompoundState { return c.state }

// Restore 从持久化恢复
func (c *CompoundManager) Restore(s CompoundState) { c.state = s }
