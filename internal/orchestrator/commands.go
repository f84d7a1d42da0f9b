package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/events"
	"github.com/betbot/gocrash/internal/metrics"
)

// 外部命令
const (
	CmdSaque     = "saque"     // {valor}
	CmdNivel     = "nivel"     // {nivel}
	CmdPadrao    = "padrao"    // {niveis: "7,7,6"}
	CmdPausar    = "pausar"
	CmdRetomar   = "retomar"
	CmdReiniciar = "reiniciar"
)

const commandBatch = 32

// ValidateCommand 入队前校验命令与参数
func ValidateCommand(name string, params map[string]string) error {
	switch name {
	case CmdSaque:
		v, err := decimal.NewFromString(strings.TrimSpace(params["valor"]))
		if err != nil || !v.IsPositive() {
			return fmt.Errorf("saque: valor inválido %q", params["valor"])
		}
	case CmdNivel:
		if _, err := domain.ParseSafetyLevel(params["nivel"]); err != nil {
			return fmt.Errorf("nivel: %w", err)
		}
	case CmdPadrao:
		if _, err := parseNiveis(params["niveis"]); err != nil {
			return fmt.Errorf("padrao: %w", err)
		}
	case CmdPausar, CmdRetomar, CmdReiniciar:
	default:
		return fmt.Errorf("comando desconhecido: %q", name)
	}
	return nil
}

func parseNiveis(raw string) ([]domain.SafetyLevel, error) {
	var out []domain.SafetyLevel
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '-' }) {
		lvl, err := domain.ParseSafetyLevel(part)
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	if err := domain.ValidatePattern(out); err != nil {
		return nil, err
	}
	return out, nil
}

// drainCommands 会话之间执行排队的命令，执行后确认
func (o *Orchestrator) drainCommands(ctx context.Context) {
	if o.deps.Commands == nil || o.session.Active() {
		return
	}
	cmds, err := o.deps.Commands.Pending(commandBatch)
	if err != nil {
		log.Errorf("❌ 读取命令队列失败: %v", err)
		return
	}
	if len(cmds) == 0 {
		return
	}
	for _, c := range cmds {
		result, execErr := o.applyCommand(ctx, c.Name, c.Params)
		if _, err := o.deps.Commands.Ack(c.Seq, result, execErr); err != nil {
			log.Errorf("❌ 确认命令失败 seq=%d: %v", c.Seq, err)
		}
		metrics.CommandsApplied.Add(1)
		ev := events.CommandAppliedEvent{
			Seq:       c.Seq,
			Command:   c.Name,
			Params:    c.Params,
			Result:    result,
			Timestamp: o.now(),
		}
		if execErr != nil {
			ev.Error = execErr.Error()
			log.Warnf("⚠️ 命令执行失败 %s %v: %v", c.Name, c.Params, execErr)
		} else {
			log.Infof("📨 命令已执行 %s: %s", c.Name, result)
		}
		o.publish(ev)
	}
	o.persist()
}

func (o *Orchestrator) applyCommand(ctx context.Context, name string, params map[string]string) (string, error) {
	if err := ValidateCommand(name, params); err != nil {
		return "", err
	}
	switch name {
	case CmdSaque:
		valor := decimal.RequireFromString(strings.TrimSpace(params["valor"]))
		if err := o.reserve.Sacar(valor); err != nil {
			return "", err
		}
		o.sessao.TotalSaques = o.sessao.TotalSaques.Add(valor)
		return fmt.Sprintf("saque %s, reserva %s", valor.StringFixed(2), o.reserve.Reserva().StringFixed(2)), nil

	case CmdNivel:
		lvl, _ := domain.ParseSafetyLevel(params["nivel"])
		if err := o.accel.SetFixedLevel(lvl); err != nil {
			return "", err
		}
		o.sessao.NivelFixo = lvl
		o.sessao.NivelSeguranca = lvl
		return "nivel fixo " + lvl.String(), nil

	case CmdPadrao:
		pattern, _ := parseNiveis(params["niveis"])
		if err := o.accel.SetPattern(pattern); err != nil {
			return "", err
		}
		o.accel.Enable()
		o.sessao.NivelFixo = 0
		o.sessao.NivelSeguranca = o.accel.NextLevel()
		return "padrao " + o.accel.Position(), nil

	case CmdPausar:
		if o.manualPause {
			return "ja pausado", nil
		}
		o.manualPause = true
		o.sessao.Pausado = true
		o.publish(events.PauseChangedEvent{Paused: true, Reason: pauseManual, Timestamp: o.now()})
		return "pausado", nil

	case CmdRetomar:
		o.manualPause = false
		o.sessao.Pausado = false
		o.compound.LimparBust()
		o.breaker.Resume()
		o.publish(events.PauseChangedEvent{Paused: false, Reason: CmdRetomar, Timestamp: o.now()})
		return "retomado", nil

	case CmdReiniciar:
		return o.reiniciar(ctx)
	}
	return "", fmt.Errorf("comando desconhecido: %q", name)
}

// reiniciar 重置会话统计，以当前余额作为新的初始存款；储备和加速保持不变
func (o *Orchestrator) reiniciar(ctx context.Context) (string, error) {
	saldo, err := o.readBalance(ctx)
	if err != nil {
		return "", err
	}
	prev := o.sessao
	o.sessao = newSessaoState(saldo, o.now())
	o.sessao.NivelFixo = prev.NivelFixo
	o.sessao.Pausado = prev.Pausado
	o.sessao.NivelSeguranca = o.accel.NextLevel()
	o.trigger.Reset()
	return fmt.Sprintf("nova sessao %s, deposito %s", o.sessao.SessaoID, saldo.StringFixed(2)), nil
}
