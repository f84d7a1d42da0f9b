// Package acceleration 按固定模式轮换下一次触发使用的安全等级。
package acceleration

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/domain"
)

var log = logrus.WithField("component", "acceleration")

// InitialGatilhosSinceWorstCase 初始值很大，表示最近没有出现最坏情况
const InitialGatilhosSinceWorstCase = 999

// DefaultPattern [7,7,6]
func DefaultPattern() []domain.SafetyLevel {
	return []domain.SafetyLevel{domain.NS7, domain.NS7, domain.NS6}
}

// State 持久化状态
type State struct {
	Pattern                []domain.SafetyLevel `json:"pattern"`
	PatternIndex           int                  `json:"pattern_index"`
	GatilhosSinceWorstCase int                  `json:"gatilhos_since_worst_case"`
	BancaPico              decimal.Decimal      `json:"banca_pico"`
	LastWorstCaseAt        *time.Time           `json:"last_worst_case_at,omitempty"`
	SessionsByLevel        map[int]int          `json:"sessions_by_level,omitempty"`
}

// Manager 加速管理器，只由决策循环调用
type Manager struct {
	state    State
	enabled  bool
	fallback domain.SafetyLevel
	now      func() time.Time
}

// NewManager pattern 为空时使用默认模式；fallback 为关闭加速时的固定等级
func NewManager(pattern []domain.SafetyLevel, fallback domain.SafetyLevel, bancaInicial decimal.Decimal) (*Manager, error) {
	if len(pattern) == 0 {
		pattern = DefaultPattern()
	}
	if err := domain.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if !fallback.Valid() {
		fallback = domain.NS7
	}
	return &Manager{
		state: State{
			Pattern:                append([]domain.SafetyLevel(nil), pattern...),
			GatilhosSinceWorstCase: InitialGatilhosSinceWorstCase,
			BancaPico:              bancaInicial,
			SessionsByLevel:        map[int]int{},
		},
		enabled:  true,
		fallback: fallback,
		now:      time.Now,
	}, nil
}

// NextLevel 下一次触发使用的等级，不推进索引
func (m *Manager) NextLevel() domain.SafetyLevel {
	if !m.enabled {
		return m.fallback
	}
	p := m.state.Pattern
	return p[m.state.PatternIndex%len(p)]
}

// RegistrarSessao 会话结束后调用：推进索引，更新最坏情况计数与峰值
func (m *Manager) RegistrarSessao(level domain.SafetyLevel, reachedTerminal bool, banca decimal.Decimal) {
	if m.state.SessionsByLevel == nil {
		m.state.SessionsByLevel = map[int]int{}
	}
	m.state.SessionsByLevel[int(level)]++
	m.state.PatternIndex++

	if reachedTerminal {
		now := m.now()
		m.state.GatilhosSinceWorstCase = 0
		m.state.LastWorstCaseAt = &now
	} else {
		m.state.GatilhosSinceWorstCase++
	}
	if banca.GreaterThan(m.state.BancaPico) {
		m.state.BancaPico = banca
	}
	log.Debugf("padrao=%s gatilhos_since_worst=%d pico=%s",
		m.Position(), m.state.GatilhosSinceWorstCase, m.state.BancaPico.StringFixed(2))
}

// MarcarEmprestimo 发放借款后重置计数，避免立即再借
func (m *Manager) MarcarEmprestimo() {
	m.state.GatilhosSinceWorstCase = 0
}

// SetPattern 校验并替换模式，索引归零
func (m *Manager) SetPattern(pattern []domain.SafetyLevel) error {
	if err := domain.ValidatePattern(pattern); err != nil {
		return err
	}
	m.state.Pattern = append([]domain.SafetyLevel(nil), pattern...)
	m.state.PatternIndex = 0
	log.Infof("🔁 新模式: %s", m.Position())
	return nil
}

// SetFixedLevel 关闭加速并固定等级
func (m *Manager) SetFixedLevel(level domain.SafetyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSafetyLevel, int(level))
	}
	m.fallback = level
	m.enabled = false
	return nil
}

// Enable 重新启用模式轮换
func (m *Manager) Enable() { m.enabled = true }

// Enabled 是否启用模式轮换
func (m *Manager) Enabled() bool { return m.enabled }

// Position 形如 7-7-[6]
func (m *Manager) Position() string {
	p := m.state.Pattern
	idx := m.state.PatternIndex % len(p)
	parts := make([]string, len(p))
	for i, l := range p {
		if i == idx {
			parts[i] = fmt.Sprintf("[%d]", int(l))
		} else {
			parts[i] = fmt.Sprintf("%d", int(l))
		}
	}
	return strings.Join(parts, "-")
}

// GatilhosSinceWorstCase 距离上次最坏情况的会话数
func (m *Manager) GatilhosSinceWorstCase() int { return m.state.GatilhosSinceWorstCase }

// BancaPico 历史峰值
func (m *Manager) BancaPico() decimal.Decimal { return m.state.BancaPico }

// State 返回副本
func (m *Manager) State() State {
	s := m.state
	s.Pattern = append([]domain.SafetyLevel(nil), m.state.Pattern...)
	s.SessionsByLevel = make(map[int]int, len(m.state.SessionsByLevel))
	for k, v := range m.state.SessionsByLevel {
		s.SessionsByLevel[k] = v
	}
	return s
}

// Restore 从持久化状态恢复
func (m *Manager) Restore(s State) error {
	if err := domain.ValidatePattern(s.Pattern); err != nil {
		return err
	}
	if s.PatternIndex < 0 {
		return fmt.Errorf("pattern_index 不能为负数: %d", s.PatternIndex)
	}
	m.state = s
	m.state.Pattern = append([]domain.SafetyLevel(nil), s.Pattern...)
	if m.state.SessionsByLevel == nil {
		m.state.SessionsByLevel = map[int]int{}
	}
	return nil
}
