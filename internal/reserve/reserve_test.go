package reserve

import (
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
)

func newManager(t *testing.T, base string) *Manager {
	t.Helper()
	m, err := NewManager(DefaultParams(), domain.D(base))
	require.NoError(t, err)
	return m
}

func TestRegistrarResultado_Milestone(t *testing.T) {
	m := newManager(t, "1000")

	res := m.RegistrarResultado(domain.D("60"))
	assert.Nil(t, res.Meta)
	res = m.RegistrarResultado(domain.D("50"))
	require.NotNil(t, res.Meta)

	st := m.State()
	assert.True(t, st.ReservaTotal.Equal(domain.D("55")))
	assert.True(t, st.BancaBase.Equal(domain.D("1055")))
	assert.True(t, st.LucroAcumulado.IsZero())
	assert.Equal(t, 1, st.TotalMetasBatidas)

	// 同一累计利润不会被重复划拨
	res = m.RegistrarResultado(decimal.Zero)
	assert.Nil(t, res.Meta)
	assert.Nil(t, m.verificarMeta())
	assert.Equal(t, 1, m.State().TotalMetasBatidas)
	assert.True(t, m.Reserva().Equal(domain.D("55")))
}

func TestRegistrarResultado_LossesNeverTouchReserve(t *testing.T) {
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		m, _ := NewManager(DefaultParams(), domain.D("1000"))
		m.RegistrarResultado(domain.D("150"))
		before := m.Reserva()
		for i := 0; i < 50; i++ {
			loss := decimal.New(-int64(r.Intn(100000)+1), -2)
			m.RegistrarResultado(loss)
			if m.Reserva().LessThan(before) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("reserve decreased on losses: %v", err)
	}
}

func TestLoanAndRepayment(t *testing.T) {
	m := newManager(t, "1000")
	m.RegistrarResultado(domain.D("200")) // reserva 100
	require.True(t, m.Reserva().Equal(domain.D("100")))

	// 最近出现过最坏情况：不能借
	assert.Nil(t, m.VerificarEmprestimo(3, domain.D("700"), domain.D("1100")))
	// 资金没有低于峰值 90%
	assert.Nil(t, m.VerificarEmprestimo(30, domain.D("1050"), domain.D("1100")))

	loan := m.VerificarEmprestimo(30, domain.D("700"), domain.D("1100"))
	require.NotNil(t, loan)
	// min(400, 100*50%) = 50
	assert.True(t, loan.Valor.Equal(domain.D("50")))
	assert.True(t, m.Reserva().Equal(domain.D("50")))
	assert.True(t, m.TemDivida())

	// 不允许叠加借款
	assert.Nil(t, m.VerificarEmprestimo(30, domain.D("600"), domain.D("1100")))

	// 还款优先：盈利 30 全部用于还款，不计入利润
	res := m.RegistrarResultado(domain.D("30"))
	require.NotNil(t, res.Pagamento)
	assert.True(t, res.Pagamento.Valor.Equal(domain.D("30")))
	assert.True(t, m.State().LucroAcumulado.IsZero())
	assert.True(t, m.Reserva().Equal(domain.D("80")))

	// 剩余 20 债务，盈利 25：还 20，余 5 计入利润
	res = m.RegistrarResultado(domain.D("25"))
	require.NotNil(t, res.Pagamento)
	assert.True(t, res.Pagamento.Quitado)
	assert.True(t, m.State().LucroAcumulado.Equal(domain.D("5")))
	assert.True(t, m.Reserva().Equal(domain.D("100")))
	assert.False(t, m.TemDivida())
}

func TestLoan_SkippedWhenTooSmall(t *testing.T) {
	m := newManager(t, "1000")
	m.RegistrarResultado(domain.D("120")) // reserva 60
	// min(deficit=200, 30) = 30 < 900*5% = 45
	assert.Nil(t, m.VerificarEmprestimo(40, domain.D("900"), domain.D("1100")))
	assert.False(t, m.TemDivida())
}

func TestSacar(t *testing.T) {
	m := newManager(t, "1000")
	m.RegistrarResultado(domain.D("100"))
	assert.ErrorIs(t, m.Sacar(domain.D("51")), ErrInsufficientReserve)
	assert.ErrorIs(t, m.Sacar(domain.D("-1")), ErrInvalidAmount)
	require.NoError(t, m.Sacar(domain.D("50")))
	assert.True(t, m.Reserva().IsZero())
	assert.True(t, m.BancaOperacional(domain.D("1100")).Equal(domain.D("1100")))
}

func TestRestoreRejectsNegative(t *testing.T) {
	m := newManager(t, "1000")
	assert.Error(t, m.Restore(State{ReservaTotal: domain.D("-1")}))
}
