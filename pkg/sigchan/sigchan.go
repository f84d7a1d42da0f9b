package sigchan

import "context"

// Chan 非阻塞信号 channel：只通知“有事发生”，不传数据，多次 Emit 可合并。
// 决策循环用它等待“本轮已结束”信号。
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel（bufferSize<=0 时为 1）
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号；channel 已满时合并
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Wait 阻塞等待一次信号，ctx 结束返回 false
func (c *Chan) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.c:
		return true
	}
}

// Drain 丢弃已积压的信号
func (c *Chan) Drain() {
	for {
		select {
		case <-c.c:
		default:
			return
		}
	}
}
