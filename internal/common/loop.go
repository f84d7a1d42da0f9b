package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PanicError 后台循环内的 panic
type PanicError struct {
	Loop  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("loop %s panic: %v", e.Loop, e.Value)
}

// StartLoopOnce 只启动一次后台循环：
// - once 保证只启动一次（nil 时每次都启动）
// - setCancel 接收循环的 cancel，用于停止
// - onPanic 非空时，run 内 panic 被恢复后以 *PanicError 通知调用方
// - tick>0 时创建 ticker 并把 channel 交给 run；否则 tickC 为 nil
func StartLoopOnce(
	parent context.Context,
	name string,
	once *sync.Once,
	setCancel func(context.CancelFunc),
	onPanic func(error),
	tick time.Duration,
	run func(loopCtx context.Context, tickC <-chan time.Time),
) {
	start := func() {
		loopCtx, cancel := context.WithCancel(parent)
		if setCancel != nil {
			setCancel(cancel)
		}
		go startLoop(loopCtx, name, tick, onPanic, run)
	}
	if once == nil {
		start()
		return
	}
	once.Do(start)
}

func startLoop(loopCtx context.Context, name string, tick time.Duration, onPanic func(error), run func(context.Context, <-chan time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Loop: name, Value: r}
			logrus.WithField("loop", name).Errorf("❌ 循环 panic，已退出: %v", r)
			if onPanic != nil {
				onPanic(err)
			}
		}
	}()
	var tickC <-chan time.Time
	if tick > 0 {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		tickC = ticker.C
	}
	run(loopCtx, tickC)
}
