package paper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/ports"
)

// Source 本地结果来源：每个结果先在纸面桌上结算，再交给引擎。
// 下一个结果要等引擎对上一个调用 Processed 后才给出，保证下注落在正确的轮次。
type Source struct {
	table *Table
	next  func() (domain.Outcome, error)
	delay time.Duration
	ready chan struct{}
	first bool
	now   func() time.Time
}

var (
	_ ports.EventSource = (*Source)(nil)
	_ ports.Pacer       = (*Source)(nil)
	_ ports.Refresher   = (*Source)(nil)
)

func newSource(table *Table, delay time.Duration, next func() (domain.Outcome, error)) *Source {
	return &Source{
		table: table,
		next:  next,
		delay: delay,
		ready: make(chan struct{}, 1),
		first: true,
		now:   time.Now,
	}
}

// NewReplaySource 按顺序回放结果，结束后返回 io.EOF
func NewReplaySource(table *Table, outcomes []domain.Outcome, delay time.Duration) *Source {
	i := 0
	return newSource(table, delay, func() (domain.Outcome, error) {
		if i >= len(outcomes) {
			return domain.Outcome{}, io.EOF
		}
		o := outcomes[i]
		i++
		return o, nil
	})
}

// NewSimSource 按 1% 庄家优势的崩盘分布随机生成结果，不会结束
func NewSimSource(table *Table, seed uint64, delay time.Duration) *Source {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	round := 0
	return newSource(table, delay, func() (domain.Outcome, error) {
		round++
		return domain.Outcome{
			RoundID:    fmt.Sprintf("sim-%d", round),
			Multiplier: crashPoint(rng.Float64()),
		}, nil
	})
}

// crashPoint 0.99/(1-u)，向下取两位小数，最低 1.00
func crashPoint(u float64) decimal.Decimal {
	if u >= 1 {
		u = math.Nextafter(1, 0)
	}
	m := math.Floor(0.99/(1-u)*100) / 100
	if m < 1 {
		m = 1
	}
	return decimal.NewFromFloat(m)
}

// NextOutcome 等待上一个结果处理完成，然后给出并结算下一个
func (s *Source) NextOutcome(ctx context.Context) (domain.Outcome, error) {
	if s.first {
		s.first = false
	} else {
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-s.ready:
		}
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	o, err := s.next()
	if err != nil {
		return domain.Outcome{}, err
	}
	if o.At.IsZero() {
		o.At = s.now()
	}
	s.table.Settle(o)
	return o, nil
}

// Processed 引擎处理完一个结果
func (s *Source) Processed(domain.Outcome) {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// ReadBalance 读纸面桌余额
func (s *Source) ReadBalance(ctx context.Context) (decimal.Decimal, bool, error) {
	return s.table.ReadBalance(ctx)
}

// Refresh 本地来源无需刷新
func (s *Source) Refresh(context.Context) error {
	log.Infof("🔄 [PAPER] 刷新请求（忽略）")
	return nil
}

// LoadReplay 读取回放文件
func LoadReplay(path string) ([]domain.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay")
	}
	defer f.Close()
	return ParseReplay(f)
}

// ParseReplay 每行 "倍数" 或 "round_id,倍数"；空行和 # 开头的行跳过
func ParseReplay(r io.Reader) ([]domain.Outcome, error) {
	var out []domain.Outcome
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		roundID := ""
		raw := text
		if i := strings.IndexByte(text, ','); i >= 0 {
			roundID = strings.TrimSpace(text[:i])
			raw = strings.TrimSpace(text[i+1:])
		}
		raw = strings.TrimSuffix(strings.TrimSuffix(raw, "x"), "X")
		m, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "replay line %d", line)
		}
		if roundID == "" {
			roundID = "replay-" + strconv.Itoa(line)
		}
		o, err := domain.NewOutcome(roundID, m, time.Time{})
		if err != nil {
			return nil, errors.Wrapf(err, "replay line %d", line)
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read replay")
	}
	return out, nil
}
