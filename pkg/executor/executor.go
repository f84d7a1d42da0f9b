// Package executor 单 worker 串行执行器：调用方只投递，不在自己的协程里做 IO。
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var execLog = logrus.WithField("component", "executor")

// Command 一次需要串行执行的 IO 动作。Do 不得长时间忽略 ctx。
type Command struct {
	Name    string
	Timeout time.Duration
	Do      func(ctx context.Context)
}

// Executor 命令执行器接口
type Executor interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Submit(cmd Command) bool
	QueueLen() int
}

// Serial 单 worker 串行执行，保证顺序。停止时把已入队的命令执行完。
type Serial struct {
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	ch   chan Command
	wg   sync.WaitGroup
	once sync.Once
}

var _ Executor = (*Serial)(nil)

// NewSerial buffer<=0 时为 1024
func NewSerial(buffer int) *Serial {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Serial{ch: make(chan Command, buffer)}
}

// Start 启动 worker（只生效一次）
func (e *Serial) Start(ctx context.Context) {
	e.once.Do(func() {
		e.mu.Lock()
		e.ctx, e.cancel = context.WithCancel(ctx)
		runCtx := e.ctx
		e.mu.Unlock()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					e.drain()
					return
				case cmd := <-e.ch:
					e.run(runCtx, cmd)
				}
			}
		}()

		execLog.Infof("✅ 执行器已启动 (buffer=%d)", cap(e.ch))
	})
}

// drain 停止后执行剩余命令，使用独立的 context
func (e *Serial) drain() {
	for {
		select {
		case cmd := <-e.ch:
			e.run(context.Background(), cmd)
		default:
			return
		}
	}
}

func (e *Serial) run(parent context.Context, cmd Command) {
	if cmd.Do == nil {
		return
	}
	runCtx := parent
	cancel := func() {}
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(parent, cmd.Timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			execLog.Errorf("命令 panic: name=%s panic=%v", cmd.Name, r)
		}
	}()
	cmd.Do(runCtx)
}

// Stop 停止 worker 并等待剩余命令执行完
func (e *Serial) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		execLog.Infof("✅ 执行器已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("停止执行器超时: %w", ctx.Err())
	}
}

// Submit 非阻塞投递；队列满时返回 false
func (e *Serial) Submit(cmd Command) bool {
	select {
	case e.ch <- cmd:
		return true
	default:
		execLog.Warnf("⚠️ 执行器队列已满，丢弃命令: %s", cmd.Name)
		return false
	}
}

// QueueLen 排队中的命令数
func (e *Serial) QueueLen() int {
	return len(e.ch)
}
