package martingale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
)

// 双槽拆分比例：倒数第二次 6/16 + 10/16，最后一次 12/32 + 20/32。
var (
	penultimateLucroNum = decimal.NewFromInt(6)
	penultimateDen      = decimal.NewFromInt(16)
	terminalHighNum     = decimal.NewFromInt(12)
	terminalDen         = decimal.NewFromInt(32)
)

// Schedule 返回整个序列每次尝试的总注额。
// 前 N-1 次按 bankroll*2^(t-1)/divisor 四舍五入到分，最后一次取剩余，
// 保证 Σ == bankroll（不产生舍入泄漏）。
func Schedule(level domain.SafetyLevel, bankroll decimal.Decimal) []decimal.Decimal {
	n := level.MaxAttempts()
	div := decimal.NewFromInt(level.Divisor())
	out := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for t := 1; t < n; t++ {
		stake := bankroll.Mul(domain.Pow2(t-1)).DivRound(div, domain.MoneyPlaces)
		out[t-1] = stake
		sum = sum.Add(stake)
	}
	out[n-1] = bankroll.Sub(sum)
	return out
}

// Plan 纯函数：给定尝试序号、安全等级、运营资金与目标，返回下注计划。
func Plan(attempt int, level domain.SafetyLevel, bankroll decimal.Decimal, targets domain.Targets) (domain.AttemptPlan, error) {
	if !level.Valid() {
		return domain.AttemptPlan{}, fmt.Errorf("%w: %d", domain.ErrInvalidSafetyLevel, int(level))
	}
	maxAttempts := level.MaxAttempts()
	if attempt < 1 || attempt > maxAttempts {
		return domain.AttemptPlan{}, fmt.Errorf("%w: %d (1..%d)", domain.ErrInvalidAttempt, attempt, maxAttempts)
	}
	if !bankroll.IsPositive() {
		return domain.AttemptPlan{}, fmt.Errorf("%w: %s", domain.ErrInvalidBankroll, bankroll)
	}

	total := Schedule(level, bankroll)[attempt-1]
	plan := domain.AttemptPlan{
		Attempt: attempt,
		Level:   level,
		Total:   total,
	}

	switch {
	case attempt == maxAttempts:
		high := total.Mul(terminalHighNum).DivRound(terminalDen, domain.MoneyPlaces)
		plan.Kind = domain.AttemptTerminal
		plan.Slots = []domain.SlotPlan{
			{Slot: 1, Role: domain.RoleSurvival, Stake: high, Target: targets.Survival},
			{Slot: 2, Role: domain.RoleDefesa, Stake: total.Sub(high), Target: targets.Defense},
		}
	case attempt == maxAttempts-1:
		lucro := total.Mul(penultimateLucroNum).DivRound(penultimateDen, domain.MoneyPlaces)
		plan.Kind = domain.AttemptPenultimate
		plan.Slots = []domain.SlotPlan{
			{Slot: 1, Role: domain.RoleLucro, Stake: lucro, Target: targets.Primary},
			{Slot: 2, Role: domain.RoleDefesa, Stake: total.Sub(lucro), Target: targets.Defense},
		}
	default:
		plan.Kind = domain.AttemptSingle
		plan.Slots = []domain.SlotPlan{
			{Slot: 1, Role: domain.RoleUnico, Stake: total, Target: targets.Primary},
		}
	}

	for _, s := range plan.Slots {
		if !s.Stake.IsPositive() {
			return domain.AttemptPlan{}, fmt.Errorf("%w: T%d slot %d bankroll=%s",
				domain.ErrStakeTooSmall, attempt, s.Slot, bankroll)
		}
	}
	return plan, nil
}

// Classify 将结果与当前计划比较。
// 未实际下注的槽位一律按输处理；双槽时 defesa 未下注则 B 退化为 C。
func Classify(plan domain.AttemptPlan, outcome domain.Outcome, placed domain.Placement) domain.Scenario {
	if !plan.TwoSlots() {
		if placed[0] && outcome.Clears(plan.Slots[0].Target) {
			return domain.ScenarioWin
		}
		return domain.ScenarioLoss
	}
	highWin := placed[0] && outcome.Clears(plan.Slots[0].Target)
	lowWin := placed[1] && outcome.Clears(plan.Slots[1].Target)
	switch {
	case highWin:
		return domain.ScenarioA
	case lowWin:
		return domain.ScenarioB
	default:
		return domain.ScenarioC
	}
}

// TotalStaked 返回序列前 n 次尝试的总注额
func TotalStaked(level domain.SafetyLevel, bankroll decimal.Decimal, n int) decimal.Decimal {
	sched := Schedule(level, bankroll)
	if n > len(sched) {
		n = len(sched)
	}
	sum := decimal.Zero
	for i := 0; i < n; i++ {
		sum = sum.Add(sched[i])
	}
	return sum
}
