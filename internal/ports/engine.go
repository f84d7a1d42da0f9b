package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/events"
	"github.com/betbot/gocrash/pkg/commandqueue"
)

// EventSource 外部结果来源（游戏画面识别 / HTTP 推送 / 回放文件）。
// NextOutcome 阻塞直到下一轮结束；ReadBalance 在读不到余额时返回 ok=false。
type EventSource interface {
	NextOutcome(ctx context.Context) (domain.Outcome, error)
	ReadBalance(ctx context.Context) (balance decimal.Decimal, ok bool, err error)
}

// Refresher 可选：长时间无结果时请求外部刷新（重新加载页面等）
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Pacer 可选：回放类来源需要等引擎处理完上一个结果再给出下一个
type Pacer interface {
	Processed(o domain.Outcome)
}

// BetReceipt 下注回执
type BetReceipt struct {
	Accepted  bool          `json:"accepted"`
	Confirmed bool          `json:"confirmed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// BetActuator 外部下注执行器
type BetActuator interface {
	PlaceBet(ctx context.Context, amount, target decimal.Decimal, slot int) (BetReceipt, error)
}

// CommandSource 决策循环在会话之间拉取并确认命令
type CommandSource interface {
	Pending(limit int) ([]commandqueue.Command, error)
	Ack(seq uint64, result string, execErr error) (commandqueue.Command, error)
}

// EventSink 只读观察者（SQL 落库 / 控制面推送）。Publish 不能阻塞决策循环。
type EventSink interface {
	Publish(ev events.Event)
}
