package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionRow sessions 表的一行
type SessionRow struct {
	SessionID       string    `json:"session_id"`
	Level           int       `json:"level"`
	Status          string    `json:"status"`
	Attempts        int       `json:"attempts"`
	ReachedTerminal bool      `json:"reached_terminal"`
	SaldoInicio     string    `json:"saldo_inicio"`
	SaldoFim        string    `json:"saldo_fim,omitempty"`
	Bankroll        string    `json:"bankroll"`
	PL              string    `json:"pl,omitempty"`
	TotalStaked     string    `json:"total_staked,omitempty"`
	ReserveAfter    string    `json:"reserve_after,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// RoundRow rounds 表的一行
type RoundRow struct {
	RoundID    string    `json:"round_id,omitempty"`
	Multiplier string    `json:"multiplier"`
	LowRun     int       `json:"low_run"`
	State      string    `json:"state"`
	At         time.Time `json:"at"`
}

// LogRow system_logs 表的一行
type LogRow struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Summary 汇总统计
type Summary struct {
	Rounds   int `json:"rounds"`
	Sessions int `json:"sessions"`
	Wins     int `json:"wins"`
	Stops    int `json:"stops"`
	Busts    int `json:"busts"`
	Aborted  int `json:"aborted"`
	Bets     int `json:"bets"`
	Rejected int `json:"rejected"`
	Refresh  int `json:"refresh_events"`
}

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 50
	}
	return limit
}

// RecentSessions 最近的会话（新到旧）
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, level, status, attempts, reached_terminal, saldo_inicio, saldo_fim, bankroll,
       pl, total_staked, reserve_after, reason, started_at
FROM sessions ORDER BY started_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r                                        SessionRow
			terminal                                 int
			saldoFim, pl, staked, reserveAft, reason sql.NullString
			started                                  string
		)
		if err := rows.Scan(&r.SessionID, &r.Level, &r.Status, &r.Attempts, &terminal, &r.SaldoInicio,
			&saldoFim, &r.Bankroll, &pl, &staked, &reserveAft, &reason, &started); err != nil {
			return nil, err
		}
		r.ReachedTerminal = terminal == 1
		r.SaldoFim = saldoFim.String
		r.PL = pl.String
		r.TotalStaked = staked.String
		r.ReserveAfter = reserveAft.String
		r.Reason = reason.String
		r.StartedAt = parseTS(started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentRounds 最近的结果（新到旧）
func (s *Store) RecentRounds(ctx context.Context, limit int) ([]RoundRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT round_id, multiplier, low_run, state, ts FROM rounds ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var (
			r       RoundRow
			roundID sql.NullString
			at      string
		)
		if err := rows.Scan(&roundID, &r.Multiplier, &r.LowRun, &r.State, &at); err != nil {
			return nil, err
		}
		r.RoundID = roundID.String
		r.At = parseTS(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentLogs 最近的系统日志（新到旧）
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]LogRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, message, ts FROM system_logs ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var (
			r  LogRow
			at string
		)
		if err := rows.Scan(&r.Kind, &r.Message, &at); err != nil {
			return nil, err
		}
		r.At = parseTS(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary 汇总
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM rounds),
  (SELECT COUNT(*) FROM sessions),
  (SELECT COUNT(*) FROM sessions WHERE status='WIN'),
  (SELECT COUNT(*) FROM sessions WHERE status='PARAR'),
  (SELECT COUNT(*) FROM sessions WHERE status='BUST'),
  (SELECT COUNT(*) FROM sessions WHERE status='ABORTED'),
  (SELECT COUNT(*) FROM bets),
  (SELECT COUNT(*) FROM bets WHERE accepted=0),
  (SELECT COUNT(*) FROM refresh_events)`).Scan(
		&sum.Rounds, &sum.Sessions, &sum.Wins, &sum.Stops, &sum.Busts, &sum.Aborted,
		&sum.Bets, &sum.Rejected, &sum.Refresh)
	return sum, err
}
