package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/gocrash/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序依次执行（后启动的先关闭）
type Manager struct {
	mu       sync.Mutex
	handlers []namedHandler
	done     bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// Shutdown 执行所有回调（只执行一次）。ctx 应带超时。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	handlers := append([]namedHandler(nil), m.handlers...)
	m.mu.Unlock()

	if len(handlers) == 0 {
		logger.Info("没有注册的关闭回调")
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(handlers))

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			logger.Warnf("关闭超时，跳过剩余回调: %s (%v)", h.name, ctx.Err())
			return
		}
		start := time.Now()
		if err := h.fn(ctx); err != nil {
			logger.Errorf("关闭 %s 失败: %v", h.name, err)
			continue
		}
		logger.Infof("✅ %s 已关闭 (%s)", h.name, time.Since(start).Round(time.Millisecond))
	}
}
