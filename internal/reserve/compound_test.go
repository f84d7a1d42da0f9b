package reserve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/gocrash/internal/domain"
)

func TestCompoundManager_BustPausesUntilCleared(t *testing.T) {
	c := NewCompoundManager()
	c.RegistrarSessao(domain.OutcomeWin, domain.D("10"), &Meta{ValorReserva: domain.D("5"), ValorCompound: domain.D("5")})
	c.RegistrarSessao(domain.OutcomeParar, domain.D("-3"), nil)
	assert.False(t, c.Bust())
	assert.True(t, c.BancaParaApostas(domain.D("100")).Equal(domain.D("100")))

	c.RegistrarSessao(domain.OutcomeBust, domain.D("-100"), nil)
	assert.True(t, c.Bust())
	assert.True(t, c.BancaParaApostas(domain.D("100")).IsZero())

	st := c.State()
	assert.Equal(t, 3, st.TotalTriggers)
	assert.Equal(t, 1, st.CenariosB)
	assert.Equal(t, 2, st.TotalLosses)
	assert.True(t, st.TotalReservado.Equal(domain.D("5")))
	assert.InDelta(t, 33.33, c.WinRate(), 0.01)

	c.LimparBust()
	assert.False(t, c.Bust())
}
