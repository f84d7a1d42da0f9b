package httpio

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/ports"
	"github.com/betbot/gocrash/pkg/ratelimit"
)

type betRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Target decimal.Decimal `json:"target"`
	Slot   int             `json:"slot"`
}

type betResponse struct {
	Accepted  bool   `json:"accepted"`
	Confirmed bool   `json:"confirmed"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// Actuator POST /bets
type Actuator struct {
	c *Client
}

var _ ports.BetActuator = (*Actuator)(nil)

// NewActuator 创建 HTTP 下注执行器
func NewActuator(c *Client) *Actuator {
	return &Actuator{c: c}
}

// PlaceBet 下注；对方拒绝时 Accepted=false 且不返回错误
func (a *Actuator) PlaceBet(ctx context.Context, amount, target decimal.Decimal, slot int) (ports.BetReceipt, error) {
	start := time.Now()
	var out betResponse
	req := betRequest{Amount: amount, Target: target, Slot: slot}
	if _, err := a.c.do(ctx, ratelimit.EndpointBet, http.MethodPost, "/bets", req, &out); err != nil {
		return ports.BetReceipt{Elapsed: time.Since(start)}, err
	}
	elapsed := time.Duration(out.ElapsedMs) * time.Millisecond
	if elapsed == 0 {
		elapsed = time.Since(start)
	}
	if !out.Accepted && out.Error != "" {
		log.Warnf("⚠️ S%d 下注被拒绝: %s", slot, out.Error)
	}
	return ports.BetReceipt{Accepted: out.Accepted, Confirmed: out.Confirmed, Elapsed: elapsed}, nil
}
