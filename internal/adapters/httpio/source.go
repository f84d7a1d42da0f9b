package httpio

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/ports"
	"github.com/betbot/gocrash/pkg/ratelimit"
)

type outcomeDTO struct {
	RoundID    string          `json:"round_id"`
	Multiplier decimal.Decimal `json:"multiplier"`
	At         time.Time       `json:"at"`
}

type balanceDTO struct {
	Balance decimal.Decimal `json:"balance"`
	OK      bool            `json:"ok"`
}

// Source 轮询 GET /outcomes/latest，round_id 变化时给出新结果。
// 第一次轮询只记录当前轮次，不输出（避免把启动前已结束的轮次当作新结果）。
type Source struct {
	c       *Client
	last    string
	primed  bool
	pollErr int
}

var (
	_ ports.EventSource = (*Source)(nil)
	_ ports.Refresher   = (*Source)(nil)
)

// NewSource 创建 HTTP 结果来源
func NewSource(c *Client) *Source {
	return &Source{c: c}
}

// NextOutcome 阻塞直到出现新的轮次
func (s *Source) NextOutcome(ctx context.Context) (domain.Outcome, error) {
	ticker := time.NewTicker(s.c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		o, ok, err := s.poll(ctx)
		if err != nil {
			s.pollErr++
			if s.pollErr == 1 || s.pollErr%20 == 0 {
				log.Warnf("⚠️ 轮询结果失败 (%d): %v", s.pollErr, err)
			}
		} else {
			s.pollErr = 0
			if ok {
				return o, nil
			}
		}
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Source) poll(ctx context.Context) (domain.Outcome, bool, error) {
	var dto outcomeDTO
	resp, err := s.c.do(ctx, ratelimit.EndpointOutcome, http.MethodGet, "/outcomes/latest", nil, &dto)
	if err != nil {
		return domain.Outcome{}, false, err
	}
	if resp.StatusCode() == http.StatusNoContent || dto.RoundID == "" || dto.RoundID == s.last {
		return domain.Outcome{}, false, nil
	}
	first := !s.primed
	s.primed = true
	s.last = dto.RoundID
	if first {
		log.Infof("📡 当前轮次 %s (%sx)，等待下一轮", dto.RoundID, dto.Multiplier.StringFixed(2))
		return domain.Outcome{}, false, nil
	}
	at := dto.At
	if at.IsZero() {
		at = time.Now()
	}
	o, err := domain.NewOutcome(dto.RoundID, dto.Multiplier, at)
	if err != nil {
		return domain.Outcome{}, false, errors.Wrapf(err, "round %s", dto.RoundID)
	}
	return o, true, nil
}

// ReadBalance GET /balance；对方读不到余额时返回 ok=false
func (s *Source) ReadBalance(ctx context.Context) (decimal.Decimal, bool, error) {
	var dto balanceDTO
	if _, err := s.c.do(ctx, ratelimit.EndpointBalance, http.MethodGet, "/balance", nil, &dto); err != nil {
		return decimal.Zero, false, err
	}
	if !dto.OK {
		return decimal.Zero, false, nil
	}
	return dto.Balance, true, nil
}

// Refresh POST /refresh（重新加载游戏页面）
func (s *Source) Refresh(ctx context.Context) error {
	_, err := s.c.do(ctx, ratelimit.EndpointRefresh, http.MethodPost, "/refresh", map[string]string{"reason": "anomaly"}, nil)
	return err
}
