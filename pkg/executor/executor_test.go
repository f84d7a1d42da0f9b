package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialKeepsOrderAndRecoversPanic(t *testing.T) {
	e := NewSerial(16)
	e.Start(context.Background())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if i == 2 {
			require.True(t, e.Submit(Command{Name: "boom", Do: func(context.Context) { panic("boom") }}))
		}
		require.True(t, e.Submit(Command{Name: "n", Do: func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestSerialDropsWhenFull(t *testing.T) {
	e := NewSerial(1)
	require.True(t, e.Submit(Command{Name: "a"}))
	assert.False(t, e.Submit(Command{Name: "b"}))
	assert.Equal(t, 1, e.QueueLen())
}

func TestSerialTimeout(t *testing.T) {
	e := NewSerial(4)
	e.Start(context.Background())
	done := make(chan error, 1)
	e.Submit(Command{Name: "slow", Timeout: 10 * time.Millisecond, Do: func(ctx context.Context) {
		<-ctx.Done()
		done <- ctx.Err()
	}})
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("timeout not applied")
	}
	require.NoError(t, e.Stop(context.Background()))
}
