package orchestrator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/acceleration"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/regime"
	"github.com/betbot/gocrash/internal/reserve"
	"github.com/betbot/gocrash/internal/risk"
	"github.com/betbot/gocrash/pkg/config"
)

// Options 引擎参数
type Options struct {
	Targets          domain.Targets
	TriggerThreshold decimal.Decimal
	TriggerSize      int
	Pattern          []domain.SafetyLevel
	FixedLevel       domain.SafetyLevel
	FallbackLevel    domain.SafetyLevel
	AnomalyTimeout   time.Duration
	RegimeWindow     int
	RegimeThreshold  decimal.Decimal
	RegimeFavorable  float64
	HistoryCap       int
	HistoryKeep      int
	BufferSize       int
	BalanceRetries   int
	RetryDelay       time.Duration
	Reserve          reserve.Params
	Risk             risk.CircuitBreakerConfig
	StateID          string
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Targets:          domain.DefaultTargets(),
		TriggerThreshold: domain.D("2.00"),
		TriggerSize:      6,
		Pattern:          acceleration.DefaultPattern(),
		FallbackLevel:    domain.NS7,
		AnomalyTimeout:   120 * time.Second,
		RegimeWindow:     regime.DefaultWindow,
		RegimeThreshold:  domain.D(regime.DefaultThreshold),
		RegimeFavorable:  regime.DefaultFavorable,
		HistoryCap:       500,
		HistoryKeep:      250,
		BufferSize:       256,
		BalanceRetries:   3,
		RetryDelay:       200 * time.Millisecond,
		Reserve:          reserve.DefaultParams(),
		Risk:             risk.CircuitBreakerConfig{MaxConsecutiveErrors: 3},
		StateID:          "crash",
	}
}

// OptionsFromConfig 从配置文件生成参数
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	e := cfg.Engine
	opts.Targets = e.Targets
	opts.TriggerThreshold = e.TriggerThreshold
	opts.TriggerSize = e.TriggerSize
	opts.Pattern = e.Pattern
	opts.FixedLevel = e.FixedLevel
	opts.FallbackLevel = e.FallbackLevel
	opts.AnomalyTimeout = e.AnomalyTimeout
	opts.RegimeWindow = e.RegimeWindow
	opts.RegimeThreshold = e.RegimeThreshold
	opts.RegimeFavorable = e.RegimeFavorable
	opts.HistoryCap = e.HistoryCap
	opts.HistoryKeep = e.HistoryKeep
	opts.BufferSize = e.BufferSize
	opts.BalanceRetries = e.BalanceRetries
	opts.Reserve = cfg.Reserve
	opts.Risk = risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: int64(cfg.Risk.MaxConsecutiveErrors),
		DailyLossLimit:       cfg.Risk.DailyLossLimit,
	}
	if cfg.Paths.StateID != "" {
		opts.StateID = cfg.Paths.StateID
	}
	return opts
}
