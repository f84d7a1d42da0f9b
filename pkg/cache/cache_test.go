package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_TTLAndDedupe(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute, 0)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.True(t, c.SetIfAbsent("r1", 1, 0))
	assert.False(t, c.SetIfAbsent("r1", 2, 0))
	v, ok := c.Get("r1")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("r1")
	assert.False(t, ok)
	assert.True(t, c.SetIfAbsent("r1", 3, 0))

	now = now.Add(2 * time.Minute)
	c.cleanup()
	assert.Equal(t, 0, c.Size())
}
