package domain

import "errors"

// 引擎错误分类。除 ErrStartupBalance 外都在决策循环内恢复（重置会话），不会终止进程。
var (
	ErrMalformedTrigger    = errors.New("malformed trigger")
	ErrBalanceUnreadable   = errors.New("balance unreadable")
	ErrBetPlacementFailure = errors.New("bet placement failure")
	ErrAnomalyTimeout      = errors.New("anomaly timeout: no outcome received")
	ErrStartupBalance      = errors.New("startup balance unreadable")

	ErrInvalidSafetyLevel = errors.New("invalid safety level")
	ErrInvalidAttempt     = errors.New("invalid attempt number")
	ErrInvalidBankroll    = errors.New("operating bankroll must be positive")
	ErrStakeTooSmall      = errors.New("stake rounds to zero")
	ErrInvalidTargets     = errors.New("invalid target multipliers")
	ErrInvalidState       = errors.New("invalid session state")
)
