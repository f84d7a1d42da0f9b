package sigchan

import (
	"context"
	"testing"
	"time"
)

func TestEmitCoalesces(t *testing.T) {
	c := New(1)
	c.Emit()
	c.Emit()
	c.Emit()
	if !c.Wait(context.Background()) {
		t.Fatalf("expected signal")
	}
	select {
	case <-c.C():
		t.Fatalf("signals should coalesce")
	default:
	}
}

func TestWaitHonoursContext(t *testing.T) {
	c := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if c.Wait(ctx) {
		t.Fatalf("expected ctx timeout")
	}
	c.Emit()
	c.Drain()
	if len(c.c) != 0 {
		t.Fatalf("drain left %d signals", len(c.c))
	}
}
