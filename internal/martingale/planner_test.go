package martingale

import (
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
)

func TestSchedule_SumEqualsBankroll(t *testing.T) {
	f := func(cents uint32, lvl uint8) bool {
		level := domain.SafetyLevel(6 + int(lvl%5))
		bankroll := decimal.New(int64(cents%10_000_000)+1, -2)
		sum := decimal.Zero
		for _, s := range Schedule(level, bankroll) {
			sum = sum.Add(s)
		}
		return sum.Equal(bankroll)
	}
	cfg := &quick.Config{MaxCount: 2000, Rand: rand.New(rand.NewSource(7))}
	if err := quick.Check(f, cfg); err != nil {
		t.Fatalf("sum != bankroll: %v", err)
	}
}

func TestSchedule_Geometric(t *testing.T) {
	sched := Schedule(domain.NS7, domain.D("1000"))
	require.Len(t, sched, 7)
	want := []string{"7.87", "15.75", "31.50", "62.99", "125.98", "251.97"}
	for i, w := range want {
		assert.Truef(t, sched[i].Equal(domain.D(w)), "t%d got=%s want=%s", i+1, sched[i], w)
	}
	// 最后一次取剩余
	assert.True(t, sched[6].Equal(domain.D("503.94")), "t7 got=%s", sched[6])
	assert.True(t, TotalStaked(domain.NS7, domain.D("1000"), 5).Equal(domain.D("244.09")))
}

func TestPlan_Layout(t *testing.T) {
	targets := domain.DefaultTargets()
	bankroll := domain.D("1000")

	for _, level := range []domain.SafetyLevel{domain.NS6, domain.NS7, domain.NS8, domain.NS9, domain.NS10} {
		max := level.MaxAttempts()
		for attempt := 1; attempt <= max; attempt++ {
			p, err := Plan(attempt, level, bankroll, targets)
			require.NoError(t, err)

			sum := decimal.Zero
			for _, s := range p.Slots {
				sum = sum.Add(s.Stake)
			}
			assert.Truef(t, sum.Equal(p.Total), "%s slots sum=%s total=%s", p, sum, p.Total)

			switch {
			case attempt == max:
				assert.Equal(t, domain.AttemptTerminal, p.Kind)
				require.Len(t, p.Slots, 2)
				assert.True(t, p.Slots[0].Target.Equal(targets.Survival))
				assert.True(t, p.Slots[1].Target.Equal(targets.Defense))
			case attempt == max-1:
				assert.Equal(t, domain.AttemptPenultimate, p.Kind)
				require.Len(t, p.Slots, 2)
				assert.True(t, p.Slots[0].Target.Equal(targets.Primary))
				assert.True(t, p.Slots[1].Target.Equal(targets.Defense))
			default:
				assert.Equal(t, domain.AttemptSingle, p.Kind)
				require.Len(t, p.Slots, 1)
			}
		}
	}
}

func TestPlan_PenultimateSplit(t *testing.T) {
	p, err := Plan(6, domain.NS7, domain.D("1000"), domain.DefaultTargets())
	require.NoError(t, err)
	// 251.97 * 6/16 = 94.48875 -> 94.49
	assert.True(t, p.Slots[0].Stake.Equal(domain.D("94.49")), "got=%s", p.Slots[0].Stake)
	assert.True(t, p.Slots[1].Stake.Equal(domain.D("157.48")), "got=%s", p.Slots[1].Stake)
}

func TestPlan_Deterministic(t *testing.T) {
	a, err := Plan(3, domain.NS8, domain.D("777.77"), domain.DefaultTargets())
	require.NoError(t, err)
	b, err := Plan(3, domain.NS8, domain.D("777.77"), domain.DefaultTargets())
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestPlan_Errors(t *testing.T) {
	targets := domain.DefaultTargets()
	_, err := Plan(0, domain.NS7, domain.D("100"), targets)
	assert.ErrorIs(t, err, domain.ErrInvalidAttempt)
	_, err = Plan(8, domain.NS7, domain.D("100"), targets)
	assert.ErrorIs(t, err, domain.ErrInvalidAttempt)
	_, err = Plan(1, domain.SafetyLevel(5), domain.D("100"), targets)
	assert.ErrorIs(t, err, domain.ErrInvalidSafetyLevel)
	_, err = Plan(1, domain.NS7, domain.D("-1"), targets)
	assert.ErrorIs(t, err, domain.ErrInvalidBankroll)
	_, err = Plan(1, domain.NS10, domain.D("1"), targets)
	assert.ErrorIs(t, err, domain.ErrStakeTooSmall)
}

func TestClassify_Penultimate(t *testing.T) {
	targets := domain.Targets{Primary: domain.D("1.99"), Defense: domain.D("1.25"), Survival: domain.D("2.50")}
	p, err := Plan(6, domain.NS7, domain.D("1000"), targets)
	require.NoError(t, err)
	both := domain.Placement{true, true}

	cases := []struct {
		mult string
		want domain.Scenario
	}{
		{"2.10", domain.ScenarioA},
		{"1.99", domain.ScenarioA},
		{"1.50", domain.ScenarioB},
		{"1.25", domain.ScenarioB},
		{"1.10", domain.ScenarioC},
	}
	for _, c := range cases {
		got := Classify(p, domain.Outcome{Multiplier: domain.D(c.mult)}, both)
		assert.Equalf(t, c.want, got, "mult=%s", c.mult)
	}
}

func TestClassify_UnplacedSlotIsLoss(t *testing.T) {
	targets := domain.DefaultTargets()
	single, _ := Plan(1, domain.NS7, domain.D("1000"), targets)
	assert.Equal(t, domain.ScenarioLoss, Classify(single, domain.Outcome{Multiplier: domain.D("5")}, domain.Placement{}))

	two, _ := Plan(6, domain.NS7, domain.D("1000"), targets)
	// defesa 未下注：B -> C
	assert.Equal(t, domain.ScenarioC, Classify(two, domain.Outcome{Multiplier: domain.D("1.50")}, domain.Placement{true, false}))
	// lucro 未下注：高倍数只算 defesa 命中
	assert.Equal(t, domain.ScenarioB, Classify(two, domain.Outcome{Multiplier: domain.D("3.00")}, domain.Placement{false, true}))
}
