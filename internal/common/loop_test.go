package common

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartLoopOnce_StartsOnlyOnce(t *testing.T) {
	var once sync.Once
	var starts atomic.Int32
	var cancels []context.CancelFunc
	var mu sync.Mutex
	ticked := make(chan struct{}, 1)

	run := func(ctx context.Context, tickC <-chan time.Time) {
		starts.Add(1)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tickC:
				select {
				case ticked <- struct{}{}:
				default:
				}
			}
		}
	}
	setCancel := func(c context.CancelFunc) {
		mu.Lock()
		cancels = append(cancels, c)
		mu.Unlock()
	}

	StartLoopOnce(context.Background(), "t", &once, setCancel, nil, 5*time.Millisecond, run)
	StartLoopOnce(context.Background(), "t", &once, setCancel, nil, 5*time.Millisecond, run)

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatalf("loop never ticked")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(cancels) != 1 {
		t.Fatalf("cancels=%d want=1", len(cancels))
	}
	cancels[0]()
	if got := starts.Load(); got != 1 {
		t.Fatalf("starts=%d want=1", got)
	}
}

func TestStartLoopOnce_ReportsPanic(t *testing.T) {
	got := make(chan error, 1)
	StartLoopOnce(context.Background(), "boom", nil, nil, func(err error) { got <- err }, 0,
		func(context.Context, <-chan time.Time) { panic("kaput") })

	select {
	case err := <-got:
		var pe *PanicError
		if !errors.As(err, &pe) {
			t.Fatalf("err=%T want *PanicError", err)
		}
		if pe.Loop != "boom" || pe.Value != "kaput" {
			t.Fatalf("unexpected panic error: %+v", pe)
		}
	case <-time.After(time.Second):
		t.Fatalf("panic was not reported")
	}
}
