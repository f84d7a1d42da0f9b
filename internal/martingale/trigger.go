package martingale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/gocrash/internal/domain"
)

// DefaultTriggerSize 连续低倍数达到该数量时触发
const DefaultTriggerSize = 6

// Trigger 一次触发（gatilho），携带恰好 Size 个低倍数结果。
type Trigger struct {
	Outcomes []domain.Outcome `json:"outcomes"`
}

// Last 返回最后一个触发结果
func (t Trigger) Last() domain.Outcome {
	if len(t.Outcomes) == 0 {
		return domain.Outcome{}
	}
	return t.Outcomes[len(t.Outcomes)-1]
}

// TriggerDetector 统计连续低于阈值的结果数。
// 只能由决策循环调用。
type TriggerDetector struct {
	threshold decimal.Decimal
	size      int

	run    int
	window []domain.Outcome
}

// NewTriggerDetector 创建触发检测器（size<=0 时使用 6）
func NewTriggerDetector(threshold decimal.Decimal, size int) *TriggerDetector {
	if size <= 0 {
		size = DefaultTriggerSize
	}
	return &TriggerDetector{
		threshold: threshold,
		size:      size,
		window:    make([]domain.Outcome, 0, size),
	}
}

// Observe 输入一个结果。
// 连续低倍数恰好达到 size 时返回触发；计数与窗口不一致时返回 ErrMalformedTrigger，
// 此时不清零计数，而是按窗口重新对齐，待再次达到 size 时重新触发。
func (d *TriggerDetector) Observe(o domain.Outcome) (*Trigger, error) {
	if !o.Below(d.threshold) {
		d.Reset()
		return nil, nil
	}

	d.run++
	d.window = append(d.window, o)
	if len(d.window) > d.size {
		d.window = d.window[len(d.window)-d.size:]
	}

	if d.run != d.size {
		return nil, nil
	}
	if len(d.window) != d.size {
		got := len(d.window)
		d.run = got
		return nil, fmt.Errorf("%w: run=%d outcomes=%d", domain.ErrMalformedTrigger, d.size, got)
	}

	outs := make([]domain.Outcome, d.size)
	copy(outs, d.window)
	return &Trigger{Outcomes: outs}, nil
}

// Reset 清零计数（高倍数或会话结束时）
func (d *TriggerDetector) Reset() {
	d.run = 0
	d.window = d.window[:0]
}

// Run 当前连续低倍数数量
func (d *TriggerDetector) Run() int { return d.run }

// Size 触发所需数量
func (d *TriggerDetector) Size() int { return d.size }

// Window 返回当前窗口的副本
func (d *TriggerDetector) Window() []domain.Outcome {
	out := make([]domain.Outcome, len(d.window))
	copy(out, d.window)
	return out
}

// Restore 从持久化状态恢复计数和窗口。
// 恢复的数据可能不一致，由 Observe 在触发时校验。
func (d *TriggerDetector) Restore(run int, window []domain.Outcome) {
	if run < 0 {
		run = 0
	}
	d.run = run
	d.window = d.window[:0]
	start := 0
	if len(window) > d.size {
		start = len(window) - d.size
	}
	d.window = append(d.window, window[start:]...)
}

// ValidateTrigger 会话启动前再次校验触发完整性
func ValidateTrigger(t *Trigger, size int) error {
	if t == nil {
		return fmt.Errorf("%w: nil trigger", domain.ErrMalformedTrigger)
	}
	if len(t.Outcomes) != size {
		return fmt.Errorf("%w: outcomes=%d want=%d", domain.ErrMalformedTrigger, len(t.Outcomes), size)
	}
	return nil
}
