// Package reserve 管理不可下注的储备金、利润目标复利和储备借款。
package reserve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/domain"
)

var log = logrus.WithField("component", "reserve")

var (
	ErrInsufficientReserve = errors.New("insufficient reserve")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Params 储备规则参数
type Params struct {
	MetaLucroPct           decimal.Decimal `json:"meta_lucro_pct" yaml:"meta_lucro_pct"`                     // 0.10
	PctReserva             decimal.Decimal `json:"pct_reserva" yaml:"pct_reserva"`                           // 0.50
	LimiteEmprestimoPct    decimal.Decimal `json:"limite_emprestimo_pct" yaml:"limite_emprestimo_pct"`       // 0.50
	TaxaPagamento          decimal.Decimal `json:"taxa_pagamento" yaml:"taxa_pagamento"`                     // 1.0
	EmprestimoMinimoPct    decimal.Decimal `json:"emprestimo_minimo_pct" yaml:"emprestimo_minimo_pct"`       // 0.05
	PicoDeficitPct         decimal.Decimal `json:"pico_deficit_pct" yaml:"pico_deficit_pct"`                 // 0.90
	GatilhosParaEmprestimo int             `json:"gatilhos_para_emprestimo" yaml:"gatilhos_para_emprestimo"` // 25
	EmprestimoAtivo        bool            `json:"emprestimo_ativo" yaml:"emprestimo_ativo"`
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		MetaLucroPct:           domain.D("0.10"),
		PctReserva:             domain.D("0.50"),
		LimiteEmprestimoPct:    domain.D("0.50"),
		TaxaPagamento:          domain.D("1.0"),
		EmprestimoMinimoPct:    domain.D("0.05"),
		PicoDeficitPct:         domain.D("0.90"),
		GatilhosParaEmprestimo: 25,
		EmprestimoAtivo:        true,
	}
}

// Validate 百分比必须在 (0,1]
func (p Params) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"meta_lucro_pct":        p.MetaLucroPct,
		"pct_reserva":           p.PctReserva,
		"limite_emprestimo_pct": p.LimiteEmprestimoPct,
		"taxa_pagamento":        p.TaxaPagamento,
		"pico_deficit_pct":      p.PicoDeficitPct,
	} {
		if !v.IsPositive() || v.GreaterThan(domain.One) {
			return fmt.Errorf("reserve.%s=%s 必须在 (0,1] 之间", name, v)
		}
	}
	if p.EmprestimoMinimoPct.IsNegative() {
		return fmt.Errorf("reserve.emprestimo_minimo_pct 不能为负数")
	}
	if p.GatilhosParaEmprestimo < 0 {
		return fmt.Errorf("reserve.gatilhos_para_emprestimo 不能为负数")
	}
	return nil
}

// State 持久化状态
type State struct {
	BancaBase         decimal.Decimal `json:"banca_base"`
	ReservaTotal      decimal.Decimal `json:"reserva_total"`
	LucroAcumulado    decimal.Decimal `json:"lucro_acumulado"`
	DividaReserva     decimal.Decimal `json:"divida_reserva"`
	TotalMetasBatidas int             `json:"total_metas_batidas"`
	TotalEmprestimos  int             `json:"total_emprestimos"`
	TotalEmprestado   decimal.Decimal `json:"total_emprestado"`
	TotalPago         decimal.Decimal `json:"total_pago"`
	TotalSacado       decimal.Decimal `json:"total_sacado"`
}

// Meta 一次利润目标达成
type Meta struct {
	Lucro         decimal.Decimal `json:"lucro"`
	ValorReserva  decimal.Decimal `json:"valor_reserva"`
	ValorCompound decimal.Decimal `json:"valor_compound"`
	ReservaTotal  decimal.Decimal `json:"reserva_total"`
	NovaBancaBase decimal.Decimal `json:"nova_banca_base"`
	TotalMetas    int             `json:"total_metas"`
}

// Pagamento 一次还款
type Pagamento struct {
	Valor          decimal.Decimal `json:"valor"`
	DividaRestante decimal.Decimal `json:"divida_restante"`
	Quitado        bool            `json:"quitado"`
}

// Emprestimo 一次借款
type Emprestimo struct {
	Valor           decimal.Decimal `json:"valor"`
	ReservaRestante decimal.Decimal `json:"reserva_restante"`
	Numero          int             `json:"numero"`
}

// Resultado RegistrarResultado 的返回
type Resultado struct {
	Pagamento *Pagamento `json:"pagamento,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
}

// Manager 储备管理器。只能由决策循环调用。
// reserva_total 只会因提现或借款减少，亏损不会动用储备。
type Manager struct {
	params Params
	state  State
}

// NewManager 以初始运营资金作为 banca_base
func NewManager(params Params, bancaBase decimal.Decimal) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Manager{params: params, state: State{BancaBase: bancaBase}}, nil
}

// RegistrarResultado 记录一次会话盈亏。
// 正盈利优先偿还储备借款，剩余部分计入 lucro_acumulado，再检查利润目标。
func (m *Manager) RegistrarResultado(pl decimal.Decimal) Resultado {
	var res Resultado
	remaining := pl
	if pl.IsPositive() && m.state.DividaReserva.IsPositive() {
		res.Pagamento = m.pagarDivida(pl)
		remaining = pl.Sub(res.Pagamento.Valor)
	}
	m.state.LucroAcumulado = m.state.LucroAcumulado.Add(remaining)
	res.Meta = m.verificarMeta()
	return res
}

func (m *Manager) pagarDivida(lucro decimal.Decimal) *Pagamento {
	desejado := lucro.Mul(m.params.TaxaPagamento)
	pagamento := domain.MinMoney(desejado, m.state.DividaReserva)
	m.state.ReservaTotal = m.state.ReservaTotal.Add(pagamento)
	m.state.DividaReserva = m.state.DividaReserva.Sub(pagamento)
	m.state.TotalPago = m.state.TotalPago.Add(pagamento)
	p := &Pagamento{
		Valor:          pagamento,
		DividaRestante: m.state.DividaReserva,
		Quitado:        m.state.DividaReserva.IsZero(),
	}
	log.Infof("💳 还款 %s，剩余债务 %s", pagamento.StringFixed(2), p.DividaRestante.StringFixed(2))
	return p
}

// MetaValor 当前利润目标金额
func (m *Manager) MetaValor() decimal.Decimal {
	return m.state.BancaBase.Mul(m.params.MetaLucroPct)
}

// ProgressoPct 距离目标的百分比
func (m *Manager) ProgressoPct() decimal.Decimal {
	meta := m.MetaValor()
	if !meta.IsPositive() {
		return decimal.Zero
	}
	return m.state.LucroAcumulado.Div(meta).Mul(decimal.NewFromInt(100)).Round(2)
}

// verificarMeta 幂等：达成后 lucro_acumulado 归零，重复调用不会重复划拨
func (m *Manager) verificarMeta() *Meta {
	meta := m.MetaValor()
	if !meta.IsPositive() || !m.state.LucroAcumulado.IsPositive() {
		return nil
	}
	if m.state.LucroAcumulado.LessThan(meta) {
		return nil
	}
	lucro := m.state.LucroAcumulado
	valorReserva := lucro.Mul(m.params.PctReserva)
	valorCompound := lucro.Sub(valorReserva)

	m.state.ReservaTotal = m.state.ReservaTotal.Add(valorReserva)
	m.state.BancaBase = m.state.BancaBase.Add(valorCompound)
	m.state.LucroAcumulado = decimal.Zero
	m.state.TotalMetasBatidas++

	log.Infof("🏆 利润目标达成 #%d: lucro=%s reserva+=%s compound+=%s",
		m.state.TotalMetasBatidas, lucro.StringFixed(2), valorReserva.StringFixed(2), valorCompound.StringFixed(2))
	return &Meta{
		Lucro:         lucro,
		ValorReserva:  valorReserva,
		ValorCompound: valorCompound,
		ReservaTotal:  m.state.ReservaTotal,
		NovaBancaBase: m.state.BancaBase,
		TotalMetas:    m.state.TotalMetasBatidas,
	}
}

// PodeEmprestar 借款条件：无未还债务、距最坏情况足够多次、资金低于峰值一定比例、储备为正
func (m *Manager) PodeEmprestar(gatilhosSinceWorst int, banca, pico decimal.Decimal) bool {
	if !m.params.EmprestimoAtivo {
		return false
	}
	return m.state.DividaReserva.IsZero() &&
		gatilhosSinceWorst >= m.params.GatilhosParaEmprestimo &&
		banca.LessThan(pico.Mul(m.params.PicoDeficitPct)) &&
		m.state.ReservaTotal.IsPositive()
}

// CalcularEmprestimo min(赤字, 储备*50%)，低于资金 5% 时返回 0
func (m *Manager) CalcularEmprestimo(banca, pico decimal.Decimal) decimal.Decimal {
	if !m.state.ReservaTotal.IsPositive() {
		return decimal.Zero
	}
	deficit := pico.Sub(banca)
	limite := m.state.ReservaTotal.Mul(m.params.LimiteEmprestimoPct)
	valor := domain.RoundMoney(domain.MinMoney(deficit, limite))
	if valor.LessThan(banca.Mul(m.params.EmprestimoMinimoPct)) || !valor.IsPositive() {
		return decimal.Zero
	}
	return valor
}

// VerificarEmprestimo 满足条件时发放借款，否则返回 nil
func (m *Manager) VerificarEmprestimo(gatilhosSinceWorst int, banca, pico decimal.Decimal) *Emprestimo {
	if !m.PodeEmprestar(gatilhosSinceWorst, banca, pico) {
		return nil
	}
	valor := m.CalcularEmprestimo(banca, pico)
	if !valor.IsPositive() {
		return nil
	}
	if valor.GreaterThan(m.state.ReservaTotal) {
		valor = m.state.ReservaTotal
	}
	m.state.ReservaTotal = m.state.ReservaTotal.Sub(valor)
	m.state.DividaReserva = m.state.DividaReserva.Add(valor)
	m.state.TotalEmprestimos++
	m.state.TotalEmprestado = m.state.TotalEmprestado.Add(valor)

	log.Warnf("🏦 储备借款 #%d: %s (剩余储备 %s)",
		m.state.TotalEmprestimos, valor.StringFixed(2), m.state.ReservaTotal.StringFixed(2))
	return &Emprestimo{Valor: valor, ReservaRestante: m.state.ReservaTotal, Numero: m.state.TotalEmprestimos}
}

// Sacar 从储备提现
func (m *Manager) Sacar(valor decimal.Decimal) error {
	if !valor.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, valor)
	}
	if valor.GreaterThan(m.state.ReservaTotal) {
		return fmt.Errorf("%w: saque=%s reserva=%s", ErrInsufficientReserve, valor, m.state.ReservaTotal)
	}
	m.state.ReservaTotal = m.state.ReservaTotal.Sub(valor)
	m.state.TotalSacado = m.state.TotalSacado.Add(valor)
	log.Infof("💸 储备提现 %s，剩余 %s", valor.StringFixed(2), m.state.ReservaTotal.StringFixed(2))
	return nil
}

// BancaOperacional 运营资金 = 余额 - 储备
func (m *Manager) BancaOperacional(saldo decimal.Decimal) decimal.Decimal {
	return saldo.Sub(m.state.ReservaTotal)
}

// Reserva 当前储备
func (m *Manager) Reserva() decimal.Decimal { return m.state.ReservaTotal }

// TemDivida 是否有未还借款
func (m *Manager) TemDivida() bool { return m.state.DividaReserva.IsPositive() }

// SetEmprestimoAtivo 开关借款
func (m *Manager) SetEmprestimoAtivo(v bool) { m.params.EmprestimoAtivo = v }

// State 返回副本
func (m *Manager) State() State { return m.state }

// Restore 从持久化恢复
func (m *Manager) Restore(s State) error {
	if s.ReservaTotal.IsNegative() || s.DividaReserva.IsNegative() {
		return fmt.Errorf("reserve state 含负数: reserva=%s divida=%s", s.ReservaTotal, s.DividaReserva)
	}
	m.state = s
	return nil
}
