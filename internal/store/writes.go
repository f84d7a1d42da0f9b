package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/betbot/gocrash/internal/events"
)

// write 按事件类型落库
func (s *Store) write(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.RoundObservedEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO rounds(round_id, multiplier, low_run, state, ts) VALUES(?,?,?,?,?)`,
			e.Outcome.RoundID, e.Outcome.Multiplier.String(), e.LowRun, string(e.State), ts(e.Timestamp))
		return err

	case events.TriggerFiredEvent:
		msg := fmt.Sprintf("gatilho %s: %s", e.Level, joinOutcomes(e))
		if e.Skipped != "" {
			msg += " (ignorado: " + e.Skipped + ")"
		}
		return s.logLine(ctx, e.EventName(), msg, e.Timestamp)

	case events.SessionStartedEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions(session_id, level, status, saldo_inicio, bankroll, reserve_before, started_at)
			 VALUES(?,?,?,?,?,?,?)`,
			e.SessionID, int(e.Level), "EM_MARTINGALE", e.SaldoInicio.String(), e.Bankroll.String(),
			e.Reserve.String(), ts(e.Timestamp))
		return err

	case events.BetPlacedEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO bets(session_id, attempt, slot, role, amount, target, accepted, confirmed, elapsed_ms, error, ts)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			e.SessionID, e.Attempt, e.Slot, string(e.Role), e.Amount.String(), e.Target.String(),
			boolInt(e.Accepted), boolInt(e.Confirmed), e.Elapsed.Milliseconds(), nullable(e.Error), ts(e.Timestamp))
		return err

	case events.AttemptSettledEvent:
		_, err := s.db.ExecContext(ctx,
			`UPDATE bets SET scenario=? WHERE session_id=? AND attempt=?`,
			string(e.Scenario), e.SessionID, e.Attempt)
		return err

	case events.SessionFinishedEvent:
		_, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET status=?, attempts=?, reached_terminal=?, saldo_fim=?, reserve_after=?, pl=?,
			 total_staked=?, meta_batida=?, pagamento=?, emprestimo=?, next_level=?, finished_at=?
			 WHERE session_id=?`,
			string(e.Outcome), e.Attempts, boolInt(e.ReachedTerminal), e.SaldoFim.String(), e.ReserveAfter.String(),
			e.PL.String(), e.TotalStaked.String(), boolInt(e.MetaBatida), e.Pagamento.String(), e.Emprestimo.String(),
			int(e.NextLevel), ts(e.Timestamp), e.SessionID)
		return err

	case events.SessionAbortedEvent:
		if e.SessionID != "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE sessions SET status='ABORTED', attempts=?, reason=?, finished_at=? WHERE session_id=?`,
				e.Attempt, e.Reason, ts(e.Timestamp), e.SessionID); err != nil {
				return err
			}
		}
		return s.logLine(ctx, e.EventName(), e.Reason, e.Timestamp)

	case events.AnomalyEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO refresh_events(silence_ms, refreshed, error, ts) VALUES(?,?,?,?)`,
			e.Silence.Milliseconds(), boolInt(e.Refreshed), nullable(e.Error), ts(e.Timestamp))
		return err

	case events.CommandAppliedEvent:
		msg := fmt.Sprintf("#%d %s %s -> %s", e.Seq, e.Command, formatParams(e.Params), e.Result)
		if e.Error != "" {
			msg += " erro: " + e.Error
		}
		return s.logLine(ctx, e.EventName(), msg, e.Timestamp)

	case events.PauseChangedEvent:
		state := "retomado"
		if e.Paused {
			state = "pausado"
		}
		return s.logLine(ctx, e.EventName(), state+": "+e.Reason, e.Timestamp)
	}
	return nil
}

func (s *Store) logLine(ctx context.Context, kind, msg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO system_logs(kind, message, ts) VALUES(?,?,?)`, kind, msg, ts(at))
	return err
}

func joinOutcomes(e events.TriggerFiredEvent) string {
	parts := make([]string, len(e.Outcomes))
	for i, o := range e.Outcomes {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}

func formatParams(p map[string]string) string {
	if len(p) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
