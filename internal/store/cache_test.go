package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	c := NewCache[string](time.Minute)

	_, ok := c.Get(now)
	assert.False(t, ok, "empty cache must miss")

	val := "hello"
	c.Put(&val, now)

	got, ok := c.Get(now.Add(59 * time.Second))
	require.True(t, ok)
	assert.Equal(t, "hello", *got)
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	c := NewCache[int](time.Minute)
	val := 42
	c.Put(&val, now)

	_, ok := c.Get(now.Add(61 * time.Second))
	assert.False(t, ok)

	// 重新放入后时钟重置
	c.Put(&val, now.Add(2*time.Minute))
	_, ok = c.Get(now.Add(2*time.Minute + 30*time.Second))
	assert.True(t, ok)
}

func TestCache_ZeroTTLAlwaysStale(t *testing.T) {
	now := time.Now()
	c := NewCache[int](0)
	val := 1
	c.Put(&val, now)

	_, ok := c.Get(now)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	now := time.Now()
	c := NewCache[int](time.Hour)
	val := 1
	c.Put(&val, now)
	c.Invalidate()

	_, ok := c.Get(now)
	assert.False(t, ok)
}
