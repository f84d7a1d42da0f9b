package metrics

import "expvar"

var (
	RoundsObserved    = expvar.NewInt("rounds_observed")
	RoundsDuplicated  = expvar.NewInt("rounds_duplicated")
	TriggersFired     = expvar.NewInt("triggers_fired")
	TriggersMalformed = expvar.NewInt("triggers_malformed")
	TriggersSkipped   = expvar.NewInt("triggers_skipped")
	SessionsStarted   = expvar.NewInt("sessions_started")
	SessionsWon       = expvar.NewInt("sessions_won")
	SessionsStopped   = expvar.NewInt("sessions_stopped")
	SessionsBusted    = expvar.NewInt("sessions_busted")
	SessionsAborted   = expvar.NewInt("sessions_aborted")
	BetsPlaced        = expvar.NewInt("bets_placed")
	BetsFailed        = expvar.NewInt("bets_failed")
	BalanceReadFails  = expvar.NewInt("balance_read_failures")
	AnomalyTimeouts   = expvar.NewInt("anomaly_timeouts")
	CommandsApplied   = expvar.NewInt("commands_applied")
	SnapshotSaves     = expvar.NewInt("snapshot_saves")
	SnapshotErrors    = expvar.NewInt("snapshot_errors")
	SinkDropped       = expvar.NewInt("sink_dropped")

	// 最近一次会话后的状态（字符串，decimal 文本）
	Bankroll = expvar.NewString("bankroll")
	Reserve  = expvar.NewString("reserve")
)
