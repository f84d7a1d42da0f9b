package syncgroup

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "syncgroup")

// SyncGroup 包装 sync.WaitGroup：先 Add 具名函数，再一次性 Run，Wait 等待全部退出。
// 每个函数的 panic 会被恢复并记录，Errors 汇总 panic 信息。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []namedFunc
	errs    []error
}

type namedFunc struct {
	name string
	fn   func()
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个待启动的函数
func (g *SyncGroup) Add(name string, fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, namedFunc{name: name, fn: fn})
}

// Run 启动所有已添加的函数，并清空待启动列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, nf := range fns {
		g.wg.Add(1)
		go func(nf namedFunc) {
			defer g.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("%s panic: %v", nf.name, r)
					log.Error(err)
					g.mu.Lock()
					g.errs = append(g.errs, err)
					g.mu.Unlock()
				}
			}()
			nf.fn()
		}(nf)
	}
}

// Wait 等待所有已启动的函数退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// Errors 返回 panic 记录
func (g *SyncGroup) Errors() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.errs...)
}
