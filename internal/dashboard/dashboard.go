// Package dashboard 终端只读面板：订阅引擎状态并渲染，不发送任何命令。
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/orchestrator"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	lowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("3"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// Engine 面板需要的引擎接口
type Engine interface {
	Snapshot() orchestrator.Snapshot
	Subscribe(buffer int) (<-chan orchestrator.Snapshot, func())
}

type snapMsg orchestrator.Snapshot

type closedMsg struct{}

type tickMsg time.Time

type model struct {
	updates   <-chan orchestrator.Snapshot
	snap      orchestrator.Snapshot
	threshold decimal.Decimal
	width     int
	closed    bool
	now       func() time.Time
}

func newModel(updates <-chan orchestrator.Snapshot, initial orchestrator.Snapshot, threshold decimal.Decimal) model {
	return model{
		updates:   updates,
		snap:      initial,
		threshold: threshold,
		now:       time.Now,
	}
}

func waitSnapshot(ch <-chan orchestrator.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapMsg(s)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitSnapshot(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapMsg:
		m.snap = orchestrator.Snapshot(msg)
		return m, waitSnapshot(m.updates)
	case closedMsg:
		m.closed = true
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	s := m.snap
	var b strings.Builder

	status := string(s.State)
	if s.Paused {
		status = warnStyle.Render("PAUSADO (" + s.PauseReason + ")")
	}
	if s.Breaker.Halted {
		status = lowStyle.Render("HALT: " + s.Breaker.Reason)
	}
	b.WriteString(headerStyle.Render("gocrash martingale") + "  " + status + "\n\n")

	// 余额与储备
	var money strings.Builder
	money.WriteString(titleStyle.Render("Banca") + "\n")
	fmt.Fprintf(&money, "saldo      %s\n", s.Sessao.SaldoAtual.StringFixed(2))
	fmt.Fprintf(&money, "operacional %s\n", s.BancaOperacional.StringFixed(2))
	fmt.Fprintf(&money, "base       %s\n", s.Reserve.BancaBase.StringFixed(2))
	fmt.Fprintf(&money, "reserva    %s\n", s.Reserve.ReservaTotal.StringFixed(2))
	if s.Reserve.DividaReserva.IsPositive() {
		fmt.Fprintf(&money, "divida     %s\n", lowStyle.Render(s.Reserve.DividaReserva.StringFixed(2)))
	}
	fmt.Fprintf(&money, "meta       %s / %s", s.MetaProgresso.StringFixed(2), s.MetaValor.StringFixed(2))

	// 会话
	var sess strings.Builder
	sess.WriteString(titleStyle.Render("Sessao") + "\n")
	fmt.Fprintf(&sess, "gatilho    %d/%d\n", s.LowRun, s.TriggerSize)
	fmt.Fprintf(&sess, "proximo    %s %s\n", s.NextLevel, s.PatternPosition)
	if s.Session.State == domain.StateEmMartingale {
		fmt.Fprintf(&sess, "ativa      %s T%d\n", s.Session.Level, s.Session.Attempt)
		fmt.Fprintf(&sess, "perda acc  %s\n", s.Session.AccumulatedLoss.StringFixed(2))
	} else {
		sess.WriteString("ativa      -\n\n")
	}
	fmt.Fprintf(&sess, "WIN %d  LOSS %d  (%.1f%%)", s.Sessao.SessoesWin, s.Sessao.SessoesLoss, s.WinRate)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		borderStyle.Render(money.String()),
		borderStyle.Render(sess.String()),
	))
	b.WriteString("\n")

	fmt.Fprintf(&b, "regime %s  | busts %d  cenarios B %d  | seq %d  cmds %d\n",
		s.Regime.String(), s.Compound.TotalBusts, s.Compound.CenariosB, s.CommitSeq, s.PendingCommands)

	b.WriteString(m.renderOutcomes())
	b.WriteString("\n")

	if len(s.Sessao.HistoricoApostas) > 0 {
		b.WriteString(titleStyle.Render("Ultimas sessoes") + "\n")
		h := s.Sessao.HistoricoApostas
		if len(h) > 5 {
			h = h[len(h)-5:]
		}
		for i := len(h) - 1; i >= 0; i-- {
			e := h[i]
			line := fmt.Sprintf("%s %-6s %-5s T%d  P/L %s", e.FinishedAt.Format("15:04:05"), e.Level, e.Outcome, e.Attempts, e.PL.StringFixed(2))
			if e.PL.IsNegative() {
				line = lowStyle.Render(line)
			} else {
				line = highStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "\natualizado ha %v  (q para sair)", m.now().Sub(s.UpdatedAt).Round(time.Second))
	} else {
		b.WriteString("\naguardando dados...  (q para sair)")
	}
	return b.String()
}

func (m model) renderOutcomes() string {
	parts := make([]string, 0, len(m.snap.RecentOutcomes))
	for _, o := range m.snap.RecentOutcomes {
		txt := o.Multiplier.StringFixed(2)
		if o.Multiplier.LessThan(m.threshold) {
			parts = append(parts, lowStyle.Render(txt))
		} else {
			parts = append(parts, highStyle.Render(txt))
		}
	}
	return "ultimos: " + strings.Join(parts, " ")
}

// Run 阻塞直到用户退出或 ctx 结束
func Run(ctx context.Context, eng Engine, threshold decimal.Decimal) error {
	updates, cancel := eng.Subscribe(1)
	defer cancel()

	p := tea.NewProgram(newModel(updates, eng.Snapshot(), threshold), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
