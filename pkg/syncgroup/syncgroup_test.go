package syncgroup

import (
	"sync/atomic"
	"testing"
)

func TestSyncGroup_RunAndRecover(t *testing.T) {
	g := NewSyncGroup()
	var n atomic.Int32
	g.Add("a", func() { n.Add(1) })
	g.Add("b", func() { n.Add(1) })
	g.Add("boom", func() { panic("x") })
	g.Run()
	g.Wait()

	if got := n.Load(); got != 2 {
		t.Fatalf("ran=%d want=2", got)
	}
	if errs := g.Errors(); len(errs) != 1 {
		t.Fatalf("errs=%d want=1", len(errs))
	}
	// Run 之后列表已清空，再次 Run 不会重复执行
	g.Run()
	g.Wait()
	if got := n.Load(); got != 2 {
		t.Fatalf("ran=%d want=2 after second Run", got)
	}
}
