// Package regime 统计最近窗口内高倍数占比，只用于暂停后是否恢复。
package regime

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
)

const (
	DefaultWindow    = 100
	DefaultThreshold = "1.99"
	DefaultFavorable = 51.0
)

// Stats 当前窗口统计
type Stats struct {
	PctHigh   float64         `json:"pct_high"`
	Rounds    int             `json:"rounds"`
	Window    int             `json:"window"`
	Favorable bool            `json:"favorable"`
	Ready     bool            `json:"ready"`
	Mean      decimal.Decimal `json:"mean"`
}

func (s Stats) String() string {
	if !s.Ready {
		return fmt.Sprintf("[AGUARDANDO] %d/%d", s.Rounds, s.Window)
	}
	if s.Favorable {
		return fmt.Sprintf("[FAVORAVEL] %.1f%%", s.PctHigh)
	}
	return fmt.Sprintf("[DESFAVORAVEL] %.1f%%", s.PctHigh)
}

// Detector 固定容量环形窗口
type Detector struct {
	window    int
	threshold decimal.Decimal
	favorable float64

	buf   []decimal.Decimal
	head  int
	count int
	highs int
	sum   decimal.Decimal
}

// NewDetector window<=0 时用 100，favorablePct<=0 时用 51
func NewDetector(window int, threshold decimal.Decimal, favorablePct float64) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if favorablePct <= 0 {
		favorablePct = DefaultFavorable
	}
	return &Detector{
		window:    window,
		threshold: threshold,
		favorable: favorablePct,
		buf:       make([]decimal.Decimal, window),
	}
}

// Observe 加入一个结果，窗口满时挤掉最旧的
func (d *Detector) Observe(o domain.Outcome) {
	m := o.Multiplier
	if d.count == d.window {
		old := d.buf[d.head]
		d.sum = d.sum.Sub(old)
		if old.GreaterThanOrEqual(d.threshold) {
			d.highs--
		}
	} else {
		d.count++
	}
	d.buf[d.head] = m
	d.head = (d.head + 1) % d.window
	d.sum = d.sum.Add(m)
	if m.GreaterThanOrEqual(d.threshold) {
		d.highs++
	}
}

// PctHigh 0~100
func (d *Detector) PctHigh() float64 {
	if d.count == 0 {
		return 0
	}
	return float64(d.highs) * 100 / float64(d.count)
}

// Ready 窗口是否已满
func (d *Detector) Ready() bool { return d.count >= d.window }

// Favorable 高倍数占比达到阈值
func (d *Detector) Favorable() bool {
	return d.count > 0 && d.PctHigh() >= d.favorable
}

// AllowResume 窗口已满且为有利状态
func (d *Detector) AllowResume() bool {
	return d.Ready() && d.Favorable()
}

// Stats 返回统计快照
func (d *Detector) Stats() Stats {
	mean := decimal.Zero
	if d.count > 0 {
		mean = d.sum.Div(decimal.NewFromInt(int64(d.count))).Round(4)
	}
	return Stats{
		PctHigh:   d.PctHigh(),
		Rounds:    d.count,
		Window:    d.window,
		Favorable: d.Favorable(),
		Ready:     d.Ready(),
		Mean:      mean,
	}
}

// Reset 清空窗口
func (d *Detector) Reset() {
	d.head, d.count, d.highs = 0, 0, 0
	d.sum = decimal.Zero
}
