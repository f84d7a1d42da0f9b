package martingale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
)

func sixLows() *Trigger {
	return &Trigger{Outcomes: outcomes("1.1", "1.2", "1.3", "1.4", "1.5", "1.6")}
}

func placeAll(s *Session, plan *domain.AttemptPlan) {
	for _, sl := range plan.Slots {
		s.MarkPlaced(sl.Slot, true)
	}
}

func TestSession_StartRejectsMalformedTrigger(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	_, err := s.Start(&Trigger{Outcomes: outcomes("1.1", "1.2")}, domain.NS7, domain.D("1000"), domain.Zero)
	assert.ErrorIs(t, err, domain.ErrMalformedTrigger)
	assert.Equal(t, domain.StateAguardandoGatilho, s.State())
}

func TestSession_OperatingBankrollExcludesReserve(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	d, err := s.Start(sixLows(), domain.NS6, domain.D("1100"), domain.D("100"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApostar, d.Action)
	// 1000/63 = 15.873 -> 15.87
	assert.True(t, d.Plan.Slots[0].Stake.Equal(domain.D("15.87")), "got=%s", d.Plan.Slots[0].Stake)
}

func TestSession_WinOnSecondAttempt(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	d, err := s.Start(sixLows(), domain.NS7, domain.D("1000"), domain.Zero)
	require.NoError(t, err)
	placeAll(s, d.Plan)

	d, err = s.Process(domain.Outcome{Multiplier: domain.D("1.50")})
	require.NoError(t, err)
	require.Equal(t, domain.ActionApostar, d.Action)
	assert.Equal(t, 2, d.Plan.Attempt)
	placeAll(s, d.Plan)

	d, err = s.Process(domain.Outcome{Multiplier: domain.D("2.40")})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFinalizar, d.Action)
	assert.Equal(t, domain.OutcomeWin, d.Outcome)
	assert.True(t, s.Ending())

	// 会话结束前再来结果也不会推进
	d, err = s.Process(domain.Outcome{Multiplier: domain.D("1.0")})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAguardar, d.Action)

	res, err := s.Finalize(domain.D("1007.87"))
	require.NoError(t, err)
	assert.True(t, res.PL.Equal(domain.D("7.87")))
	assert.Equal(t, 2, res.Attempts)
	assert.False(t, res.ReachedTerminal)
	assert.Equal(t, domain.StateFinalizado, s.State())

	s.Reset()
	assert.Equal(t, domain.StateAguardandoGatilho, s.State())
	assert.Empty(t, s.ID())
}

func runToAttempt(t *testing.T, s *Session, attempt int) *domain.AttemptPlan {
	t.Helper()
	d, err := s.Start(sixLows(), domain.NS7, domain.D("1000"), domain.Zero)
	require.NoError(t, err)
	placeAll(s, d.Plan)
	for d.Plan.Attempt < attempt {
		d, err = s.Process(domain.Outcome{Multiplier: domain.D("1.01")})
		require.NoError(t, err)
		require.Equal(t, domain.ActionApostar, d.Action)
		placeAll(s, d.Plan)
	}
	return d.Plan
}

func TestSession_PenultimateScenarios(t *testing.T) {
	targets := domain.Targets{Primary: domain.D("1.99"), Defense: domain.D("1.25"), Survival: domain.D("2.50")}

	t.Run("A", func(t *testing.T) {
		s := NewSession(targets, 6)
		runToAttempt(t, s, 6)
		d, err := s.Process(domain.Outcome{Multiplier: domain.D("2.10")})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionFinalizar, d.Action)
		assert.Equal(t, domain.ScenarioA, d.Scenario)
	})
	t.Run("B", func(t *testing.T) {
		s := NewSession(targets, 6)
		runToAttempt(t, s, 6)
		d, err := s.Process(domain.Outcome{Multiplier: domain.D("1.50")})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionParar, d.Action)
		assert.Equal(t, domain.OutcomeParar, d.Outcome)
	})
	t.Run("C", func(t *testing.T) {
		s := NewSession(targets, 6)
		runToAttempt(t, s, 6)
		d, err := s.Process(domain.Outcome{Multiplier: domain.D("1.10")})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionApostar, d.Action)
		assert.True(t, d.Plan.Terminal())
	})
}

func TestSession_TerminalBustAndSurvival(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	runToAttempt(t, s, 7)
	d, err := s.Process(domain.Outcome{Multiplier: domain.D("1.00")})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBust, d.Outcome)
	res, err := s.Finalize(domain.Zero)
	require.NoError(t, err)
	assert.True(t, res.ReachedTerminal)
	assert.True(t, res.PL.Equal(domain.D("-1000")))
	assert.True(t, res.TotalStaked.Equal(domain.D("1000")), "got=%s", res.TotalStaked)

	s.Reset()
	runToAttempt(t, s, 7)
	d, err = s.Process(domain.Outcome{Multiplier: domain.D("1.30")})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, d.Outcome)
	assert.Equal(t, domain.ScenarioB, d.Scenario)
}

func TestSession_FailedPlacementIsForcedLoss(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	_, err := s.Start(sixLows(), domain.NS7, domain.D("1000"), domain.Zero)
	require.NoError(t, err)
	s.MarkPlaced(1, false)

	d, err := s.Process(domain.Outcome{Multiplier: domain.D("10.0")})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApostar, d.Action)
	assert.Equal(t, domain.ScenarioLoss, d.Scenario)
	assert.Equal(t, 2, d.Plan.Attempt)
}

func TestSession_FinalizeRequiresEnding(t *testing.T) {
	s := NewSession(domain.DefaultTargets(), 6)
	_, err := s.Finalize(domain.D("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
