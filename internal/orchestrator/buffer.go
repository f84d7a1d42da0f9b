package orchestrator

import (
	"sync"

	"github.com/betbot/gocrash/internal/domain"
)

// ringBuffer 采集协程写、决策协程读的结果缓冲。
// seq 从 1 开始单调递增，读方用游标取增量。
type ringBuffer struct {
	mu   sync.Mutex
	buf  []domain.Outcome
	next uint64 // 下一个写入的 seq
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = 256
	}
	return &ringBuffer{buf: make([]domain.Outcome, size), next: 1}
}

// Push 写入一个结果，返回其 seq
func (r *ringBuffer) Push(o domain.Outcome) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.next
	r.buf[seq%uint64(len(r.buf))] = o
	r.next++
	return seq
}

// Since 返回 cursor 之后的全部结果（按顺序）、新的游标以及被覆盖而丢失的数量
func (r *ringBuffer) Since(cursor uint64) ([]domain.Outcome, uint64, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.next - 1
	if last <= cursor {
		return nil, cursor, 0
	}
	from := cursor + 1
	var lost uint64
	size := uint64(len(r.buf))
	if last-cursor > size {
		lost = last - cursor - size
		from = last - size + 1
	}
	out := make([]domain.Outcome, 0, last-from+1)
	for seq := from; seq <= last; seq++ {
		out = append(out, r.buf[seq%size])
	}
	return out, last, lost
}
