package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Targets 目标倍数配置
type Targets struct {
	Primary  decimal.Decimal `json:"primary" yaml:"primary"`   // 单槽 / 倒数第二次 lucro 槽
	Defense  decimal.Decimal `json:"defense" yaml:"defense"`   // defesa 槽
	Survival decimal.Decimal `json:"survival" yaml:"survival"` // 最后一次的高目标槽
}

// DefaultTargets 2.00 / 1.25 / 2.50
func DefaultTargets() Targets {
	return Targets{
		Primary:  D("2.00"),
		Defense:  D("1.25"),
		Survival: D("2.50"),
	}
}

// Validate 所有目标必须 > 1，且 defesa 低于另外两个目标
func (t Targets) Validate() error {
	for name, v := range map[string]decimal.Decimal{"primary": t.Primary, "defense": t.Defense, "survival": t.Survival} {
		if v.LessThanOrEqual(One) {
			return fmt.Errorf("%w: %s=%s 必须大于 1", ErrInvalidTargets, name, v)
		}
	}
	if t.Defense.GreaterThanOrEqual(t.Primary) || t.Defense.GreaterThanOrEqual(t.Survival) {
		return fmt.Errorf("%w: defense=%s 必须低于 primary=%s 与 survival=%s",
			ErrInvalidTargets, t.Defense, t.Primary, t.Survival)
	}
	return nil
}

// AttemptKind 尝试类型
type AttemptKind string

const (
	AttemptSingle      AttemptKind = "single"
	AttemptPenultimate AttemptKind = "penultimate"
	AttemptTerminal    AttemptKind = "terminal"
)

// SlotRole 槽位角色
type SlotRole string

const (
	RoleUnico    SlotRole = "unico"
	RoleLucro    SlotRole = "lucro"
	RoleDefesa   SlotRole = "defesa"
	RoleSurvival SlotRole = "sobrevivencia"
)

// SlotPlan 单个槽位的下注计划
type SlotPlan struct {
	Slot   int             `json:"slot"`
	Role   SlotRole        `json:"role"`
	Stake  decimal.Decimal `json:"stake"`
	Target decimal.Decimal `json:"target"`
}

// AttemptPlan 一次尝试的完整下注计划
type AttemptPlan struct {
	Attempt int             `json:"attempt"`
	Level   SafetyLevel     `json:"level"`
	Kind    AttemptKind     `json:"kind"`
	Slots   []SlotPlan      `json:"slots"`
	Total   decimal.Decimal `json:"total"`
}

// Terminal 是否为最后一次尝试
func (p AttemptPlan) Terminal() bool {
	return p.Kind == AttemptTerminal
}

// TwoSlots 是否为双槽尝试
func (p AttemptPlan) TwoSlots() bool {
	return len(p.Slots) == 2
}

func (p AttemptPlan) String() string {
	s := fmt.Sprintf("T%d/%s[%s]", p.Attempt, p.Level, p.Kind)
	for _, sl := range p.Slots {
		s += fmt.Sprintf(" S%d=%s@%sx", sl.Slot, sl.Stake.StringFixed(2), sl.Target.StringFixed(2))
	}
	return s
}

// Placement 实际下注结果（按槽位索引，0 = 槽 1）
type Placement [2]bool

// AllPlaced 计划内的全部槽位都已下注
func (p Placement) AllPlaced(plan AttemptPlan) bool {
	for i := range plan.Slots {
		if i >= len(p) || !p[i] {
			return false
		}
	}
	return true
}
